package sparse

import (
	"fmt"
	"sync"
)

// Presets are named include-pattern sets for common project shapes.
var (
	presetMu sync.RWMutex
	presets  = map[string][]string{
		"typescript": {"**/*.ts", "**/*.tsx", "**/tsconfig.json"},
		"javascript": {"**/*.js", "**/*.jsx", "**/*.mjs", "**/*.cjs", "**/package.json"},
		"go":         {"**/*.go", "**/go.mod", "**/go.sum"},
		"source":     {"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.go", "**/*.py", "**/*.rs", "**/*.java", "**/*.c", "**/*.h", "**/*.cpp"},
		"web":        {"**/*.html", "**/*.css", "**/*.scss", "**/*.js", "**/*.ts", "**/*.svg"},
		"config":     {"**/*.json", "**/*.yaml", "**/*.yml", "**/*.toml", "**/*.ini", "**/.env*"},
		"docs":       {"**/*.md", "**/*.rst", "**/*.txt"},
	}
)

// Preset returns the patterns registered under name.
func Preset(name string) ([]string, error) {
	presetMu.RLock()
	defer presetMu.RUnlock()
	patterns, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown sparse preset %q", name)
	}
	out := make([]string, len(patterns))
	copy(out, patterns)
	return out, nil
}

// RegisterPreset adds or replaces a named pattern set.
func RegisterPreset(name string, patterns []string) error {
	if name == "" {
		return fmt.Errorf("preset name cannot be empty")
	}
	if len(patterns) == 0 {
		return fmt.Errorf("preset %q needs at least one pattern", name)
	}
	stored := make([]string, len(patterns))
	copy(stored, patterns)
	presetMu.Lock()
	presets[name] = stored
	presetMu.Unlock()
	return nil
}

// PresetNames lists the registered presets.
func PresetNames() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// FromPreset builds a Config from a preset name.
func FromPreset(name, root string) (Config, error) {
	patterns, err := Preset(name)
	if err != nil {
		return Config{}, err
	}
	return Config{Patterns: patterns, Root: root}, nil
}
