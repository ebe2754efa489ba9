// Package emoji maps literal emoji characters to Slack reaction names and
// answers whether a reaction name is known at all.
package emoji

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var tableYAML []byte

type table struct {
	Literals   map[string]string `yaml:"literals"`
	ExtraNames []string          `yaml:"extra_names"`
}

var (
	loadOnce sync.Once
	loadErr  error
	literals map[string]string
	names    map[string]bool
)

func load() {
	var t table
	if err := yaml.Unmarshal(tableYAML, &t); err != nil {
		loadErr = fmt.Errorf("emoji: parse embedded table: %w", err)
		return
	}
	literals = make(map[string]string, len(t.Literals))
	names = make(map[string]bool, len(t.Literals)+len(t.ExtraNames))
	for lit, name := range t.Literals {
		name = strings.TrimSpace(name)
		if lit == "" || name == "" {
			continue
		}
		literals[lit] = name
		names[name] = true
	}
	for _, name := range t.ExtraNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names[name] = true
	}
}

// Lookup resolves a literal emoji character to its Slack reaction name.
func Lookup(literal string) (string, bool) {
	loadOnce.Do(load)
	if loadErr != nil {
		return "", false
	}
	name, ok := literals[strings.TrimSpace(literal)]
	return name, ok
}

// KnownName reports whether name is a Slack reaction name in the table.
func KnownName(name string) bool {
	loadOnce.Do(load)
	if loadErr != nil {
		return false
	}
	return names[strings.TrimSpace(name)]
}

// IsLiteral reports whether s starts with an emoji codepoint rather than a
// reaction name.
func IsLiteral(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F000:
			return true
		case r >= 0x2190 && r <= 0x2BFF:
			return true
		case r == 0x2764, r == 0x263A, r == 0x2B50:
			return true
		case unicode.Is(unicode.So, r):
			return true
		}
		return false
	}
	return false
}
