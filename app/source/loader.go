package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is a source definition loaded from a YAML file in the sources
// directory. Seeds are upserted into the database at startup so sources
// can be provisioned without touching the API.
type Seed struct {
	Name    string `yaml:"name"` // defaults to the filename without extension
	User    string `yaml:"user"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"` // defaults to true
	Config  Config `yaml:"config"`
}

// Loader reads source seed files from a directory.
type Loader struct {
	sourcesDir string
}

func NewLoader(sourcesDir string) *Loader {
	return &Loader{sourcesDir: sourcesDir}
}

// LoadAll parses every *.yml file in the sources directory. A missing
// directory is not an error; a malformed file is.
func (l *Loader) LoadAll() ([]Seed, error) {
	if _, err := os.Stat(l.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}

	seeds := make([]Seed, 0, len(files))
	for _, file := range files {
		seed, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
		seeds = append(seeds, *seed)
	}

	return seeds, nil
}

func (l *Loader) loadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if seed.Name == "" {
		seed.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if seed.User == "" {
		seed.User = "default"
	}
	if seed.Enabled == nil {
		enabled := true
		seed.Enabled = &enabled
	}

	if err := l.validate(&seed); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", path, err)
	}

	return &seed, nil
}

func (l *Loader) validate(seed *Seed) error {
	if seed.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	if seed.Config.Mode != "" && seed.Config.Mode != ModeRequests && seed.Config.Mode != ModeRendered {
		return fmt.Errorf("invalid mode %q (want %q or %q)", seed.Config.Mode, ModeRequests, ModeRendered)
	}
	if seed.Config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if seed.Config.ScrollCount < 0 {
		return fmt.Errorf("scroll count must be non-negative")
	}
	return nil
}
