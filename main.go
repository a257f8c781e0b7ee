package main

import (
	"context"
	"database/sql"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/orkbattle/assets"
	"github.com/robalobadob/orkbattle/internal/config"
	"github.com/robalobadob/orkbattle/internal/game"
	"github.com/robalobadob/orkbattle/internal/httpserver"
	"github.com/robalobadob/orkbattle/internal/narrator"
	"github.com/robalobadob/orkbattle/internal/roster"
	"github.com/robalobadob/orkbattle/internal/scores"
	"github.com/robalobadob/orkbattle/internal/session"
	"github.com/robalobadob/orkbattle/internal/store"
	"github.com/robalobadob/orkbattle/internal/words"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg, err := words.Load(cfg.WordsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load words")
	}
	ros, err := roster.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load roster")
	}
	if err := ros.CheckWords(reg.Has); err != nil {
		log.Fatal().Err(err).Msg("roster uses unknown words")
	}

	deps := session.Deps{
		Engine:    game.NewEngine(reg),
		Words:     reg,
		Roster:    ros,
		DailySalt: cfg.DailySalt,
		Limits:    game.Limits{MaxWordsPerTurn: cfg.MaxWordsPerTurn, MaxWordsCap: cfg.MaxWordsCap},
	}
	opts := httpserver.Options{
		ClientOrigin: cfg.ClientOrigin,
		JWTSecret:    cfg.JWTSecret,
		SessionTTL:   cfg.SessionTTL,
		Feed:         httpserver.NewFeed(),
	}
	deps.Feed = opts.Feed

	switch cfg.Store {
	case config.StoreSQLite:
		db := mustDB(cfg.DBPath)
		defer db.Close()
		results := scores.NewStore(db)
		deps.Store = store.NewSQLiteStore(db)
		deps.Results = results
		opts.Leaderboard = results
	default:
		deps.Store = store.NewMemoryStore()
	}

	ctx := context.Background()
	var primary narrator.Narrator
	if cfg.GeminiAPIKey != "" {
		g, err := narrator.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create gemini client")
		}
		defer g.Close()
		primary = g
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set; enemy turns use the seeded fallback")
	}
	deps.Narrator = narrator.NewResilient(primary, narrator.NewFallback(nil), cfg.NarratorTimeout, cfg.NarratorRetries)

	svc := session.New(deps)
	restored, err := svc.LoadCustomWords(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to restore custom words")
	}
	srv := httpserver.New(svc, opts)
	log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Int("words", reg.Len()).Int("custom", restored).Msg("starting orkbattle server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func mustDB(path string) *sql.DB {
	db, err := openDB(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to open database")
	}
	migrations, err := assets.Migrations()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migrations")
	}
	if err := migrate(db, migrations); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	return db
}
