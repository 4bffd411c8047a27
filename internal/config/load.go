package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is the result of resolving and reading the config file: the path
// that was consulted, the effective values, and any non-fatal warnings the
// CLI should surface before a session starts.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config path, reads the file if present, and parses and
// validates its contents. A missing file is not an error; dictation runs on
// the built-in defaults with a warning.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultsLoaded(resolvedPath), nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

func defaultsLoaded(path string) Loaded {
	return Loaded{
		Path:   path,
		Config: Default(),
		Warnings: []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		}},
	}
}
