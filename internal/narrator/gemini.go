// internal/narrator/gemini.go
//
// Gemini-backed narrator.
//
// The prompt (prompts/enemy_turn.txt) describes both combatants and asks for
// a YAML reply {words, text, speaks}; code fences around the reply are
// tolerated.

package narrator

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/orkbattle/internal/game"
)

//go:embed prompts/enemy_turn.txt
var enemyTurnPrompt string

var enemyTurnTmpl = template.Must(template.New("enemy_turn").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(enemyTurnPrompt))

// Gemini asks a Gemini model for the enemy's turn.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini connects with an API key. Close releases the client.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("narrator: gemini client: %w", err)
	}
	return &Gemini{client: client, model: client.GenerativeModel(model)}, nil
}

func (g *Gemini) Close() {
	g.client.Close()
}

func (g *Gemini) EnemyTurn(ctx context.Context, req Request) (Reply, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return Reply{}, err
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Reply{}, errors.New("narrator: no content returned from Gemini")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return Reply{}, errors.New("narrator: unexpected response type from Gemini")
	}
	return parseReply(string(text))
}

type promptData struct {
	Player      game.Combatant
	Enemy       game.Combatant
	Wave        int
	Turn        int
	PlayerWords []string
	MaxWords    int
	AllowSpeak  bool
}

func renderPrompt(req Request) (string, error) {
	var buf bytes.Buffer
	err := enemyTurnTmpl.Execute(&buf, promptData{
		Player:      req.State.Player,
		Enemy:       req.State.Enemy,
		Wave:        req.State.Wave,
		Turn:        req.Turn,
		PlayerWords: req.PlayerWords,
		MaxWords:    max(req.State.Limits.MaxWordsPerTurn, 1),
		AllowSpeak:  req.AllowSpeak,
	})
	if err != nil {
		return "", fmt.Errorf("narrator: render prompt: %w", err)
	}
	return buf.String(), nil
}

// parseReply decodes a model reply, tolerating markdown code fences.
func parseReply(raw string) (Reply, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```yaml")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var r Reply
	if err := yaml.Unmarshal([]byte(clean), &r); err != nil {
		return Reply{}, fmt.Errorf("narrator: parse reply: %w", err)
	}
	if len(r.Words) == 0 {
		return Reply{}, errors.New("narrator: reply has no words")
	}
	return r, nil
}
