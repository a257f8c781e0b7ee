// assets/embed.go
//
// Data files compiled into the binary: the built-in word registry, the
// archetype roster, the custom-word profanity list and the sqlite migrations.

package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed words.yaml roster.yaml profanity.txt migrations/*.sql
var FS embed.FS

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, strings.ToUpper(s))
	}
	return out, sc.Err()
}

func WordsYAML() ([]byte, error) {
	return FS.ReadFile("words.yaml")
}

func RosterYAML() ([]byte, error) {
	return FS.ReadFile("roster.yaml")
}

// ProfanityList returns the banned substrings, uppercased.
func ProfanityList() ([]string, error) {
	return readLines("profanity.txt")
}

// Migrations returns the migration files rooted at their directory.
func Migrations() (fs.FS, error) {
	return fs.Sub(FS, "migrations")
}
