package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// SourcesFile is the file name of the sources declaration inside models/.
const SourcesFile = "sources.yml"

type sourcesYAML struct {
	Sources []sourceYAML `yaml:"sources"`
}

type sourceYAML struct {
	Name        string     `yaml:"name"`
	File        string     `yaml:"file"`
	Description string     `yaml:"description"`
	Columns     []string   `yaml:"columns"`
	Tests       []testYAML `yaml:"tests"`
}

// ParseSources parses a sources declaration. Sources keep file order.
func ParseSources(path, content string) ([]*core.Source, error) {
	var doc sourcesYAML
	if err := decodeStrict(path, content, []string{"sources"}, &doc); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(doc.Sources))
	sources := make([]*core.Source, 0, len(doc.Sources))
	for i, s := range doc.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("sources[%d]: name is required", i)}
		}
		if seen[name] {
			return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("source %q declared twice", name)}
		}
		seen[name] = true

		tests, err := convertTests(s.Tests)
		if err != nil {
			return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("source %q: %w", name, err)}
		}

		file := s.File
		if file == "" {
			file = name + ".csv"
		}
		sources = append(sources, &core.Source{
			Name:        name,
			File:        file,
			Description: s.Description,
			Columns:     s.Columns,
			Tests:       tests,
		})
	}
	return sources, nil
}

// LoadSources reads <modelsDir>/sources.yml. A missing file yields no sources.
func LoadSources(modelsDir string) ([]*core.Source, error) {
	path := filepath.Join(modelsDir, SourcesFile)
	data, err := os.ReadFile(path) //nolint:gosec // fixed file inside the project
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}
	return ParseSources(path, string(data))
}
