// Package gamecontext loads the per-game knowledge file that grounds the
// classifier prompt: shipped features, known constraints and recent changes.
package gamecontext

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"insightbot/internal/domain"
)

var (
	ErrNotFound = errors.New("game context file not found")
	ErrInvalid  = errors.New("invalid game context")
)

// Context is the validated contents of game_features.yaml.
type Context struct {
	GameName         string         `yaml:"game_name"`
	CurrentFeatures  []string       `yaml:"current_features"`
	KnownConstraints []string       `yaml:"known_constraints"`
	RecentChanges    []string       `yaml:"recent_changes"`
	AdditionalInfo   map[string]any `yaml:"additional_info"`
}

// Load reads and validates a game context file. Every list field must be
// present and contain only non-blank strings; an empty list is allowed.
func Load(path string) (*Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read game context %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalid, path)
	}
	for _, field := range []string{"game_name", "current_features", "known_constraints", "recent_changes"} {
		if _, ok := doc[field]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q in %s", ErrInvalid, field, path)
		}
	}

	var ctx Context
	if err := yaml.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
	}
	if strings.TrimSpace(ctx.GameName) == "" {
		return nil, fmt.Errorf("%w: game_name must be a non-empty string", ErrInvalid)
	}
	for name, list := range map[string][]string{
		"current_features":  ctx.CurrentFeatures,
		"known_constraints": ctx.KnownConstraints,
		"recent_changes":    ctx.RecentChanges,
	} {
		for i, item := range list {
			if strings.TrimSpace(item) == "" {
				return nil, fmt.Errorf("%w: %s contains a blank entry at index %d", ErrInvalid, name, i)
			}
		}
	}
	return &ctx, nil
}

// FormatForPrompt renders the context as the block injected into the
// classifier prompt.
func (c *Context) FormatForPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GAME: %s\n\nCURRENT FEATURES:\n", c.GameName)
	for _, f := range c.CurrentFeatures {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	b.WriteString("\nKNOWN CONSTRAINTS:\n")
	for _, k := range c.KnownConstraints {
		fmt.Fprintf(&b, "  - %s\n", k)
	}
	b.WriteString("\nRECENT CHANGES:\n")
	for _, r := range c.RecentChanges {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	if len(c.AdditionalInfo) > 0 {
		b.WriteString("\nADDITIONAL CONTEXT:\n")
		for _, key := range sortedKeys(c.AdditionalInfo) {
			fmt.Fprintf(&b, "  %s: %v\n", key, c.AdditionalInfo[key])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// DatedChanges extracts the recent-change entries that carry a date prefix
// in the form "2024-01-15: moved the shop button". Entries without a parsed
// date get a zero Date and are skipped by the correlation step.
func (c *Context) DatedChanges() []domain.RecentChange {
	changes := make([]domain.RecentChange, 0, len(c.RecentChanges))
	for _, entry := range c.RecentChanges {
		change := domain.RecentChange{Label: entry}
		if prefix, rest, ok := strings.Cut(entry, ":"); ok {
			if ts, err := time.Parse("2006-01-02", strings.TrimSpace(prefix)); err == nil {
				change.Date = ts
				change.Label = strings.TrimSpace(rest)
			}
		}
		changes = append(changes, change)
	}
	return changes
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
