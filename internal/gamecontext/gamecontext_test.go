package gamecontext

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeContext(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game_features.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write context: %v", err)
	}
	return path
}

const validContext = `game_name: Word Trip
current_features:
  - daily challenge
  - coin shop
known_constraints:
  - no offline mode
recent_changes:
  - "2024-01-15: moved the shop button"
  - rebalanced level 40
additional_info:
  genre: word puzzle
`

func TestLoadValid(t *testing.T) {
	ctx, err := Load(writeContext(t, validContext))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ctx.GameName != "Word Trip" || len(ctx.CurrentFeatures) != 2 {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"empty file":     "",
		"missing field":  "game_name: X\ncurrent_features: []\nknown_constraints: []\n",
		"blank entry":    "game_name: X\ncurrent_features:\n  - \"  \"\nknown_constraints: []\nrecent_changes: []\n",
		"blank name":     "game_name: \"\"\ncurrent_features: []\nknown_constraints: []\nrecent_changes: []\n",
		"invalid syntax": "game_name: [unclosed\n",
	}
	for name, content := range cases {
		if _, err := Load(writeContext(t, content)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: want ErrInvalid, got %v", name, err)
		}
	}
}

func TestFormatForPrompt(t *testing.T) {
	ctx, err := Load(writeContext(t, validContext))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := ctx.FormatForPrompt()
	for _, want := range []string{
		"GAME: Word Trip",
		"CURRENT FEATURES:",
		"  - daily challenge",
		"KNOWN CONSTRAINTS:",
		"RECENT CHANGES:",
		"ADDITIONAL CONTEXT:",
		"genre: word puzzle",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt block missing %q:\n%s", want, got)
		}
	}
}

func TestDatedChanges(t *testing.T) {
	ctx, err := Load(writeContext(t, validContext))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	changes := ctx.DatedChanges()
	if len(changes) != 2 {
		t.Fatalf("want 2 changes, got %d", len(changes))
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !changes[0].Date.Equal(want) || changes[0].Label != "moved the shop button" {
		t.Fatalf("dated change %+v", changes[0])
	}
	if !changes[1].Date.IsZero() || changes[1].Label != "rebalanced level 40" {
		t.Fatalf("undated change %+v", changes[1])
	}
}
