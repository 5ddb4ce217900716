package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// ParseModel parses the content of a model file located at path. The layer
// defaults to the name of the file's parent directory.
func ParseModel(path, content string) (*core.Model, error) {
	yamlText, body, found := splitFrontmatter(content)

	var cfg ModelConfig
	if err := decodeStrict(path, yamlText, modelFields, &cfg); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	layerName := cfg.Layer
	if layerName == "" {
		layerName = filepath.Base(filepath.Dir(path))
	}
	layer, err := core.ParseLayer(layerName)
	if err != nil {
		return nil, &FrontmatterParseError{Path: path, Err: err}
	}

	materialized := cfg.Materialized
	if materialized == "" {
		materialized = core.MaterializationTable
	}
	if !slices.Contains(core.ValidMaterializations, materialized) {
		return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf(
			"invalid materialized value %q (must be one of: %s)",
			materialized, strings.Join(core.ValidMaterializations, ", "))}
	}
	if materialized == core.MaterializationIncremental && cfg.UniqueKey == "" {
		return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("incremental model %q requires unique_key", name)}
	}

	tests, err := convertTests(cfg.Tests)
	if err != nil {
		return nil, &FrontmatterParseError{Path: path, Err: err}
	}

	if body == "" {
		return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("model %q has no SQL", name)}
	}

	return &core.Model{
		Path:           string(layer) + "." + name,
		Name:           name,
		FilePath:       path,
		Layer:          layer,
		Materialized:   materialized,
		UniqueKey:      cfg.UniqueKey,
		Owner:          cfg.Owner,
		Description:    cfg.Description,
		Tags:           cfg.Tags,
		Meta:           cfg.Meta,
		Tests:          tests,
		SQL:            body,
		RawContent:     content,
		HasFrontmatter: found,
	}, nil
}

// ParseModelFile reads and parses a model file.
func ParseModelFile(path string) (*core.Model, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from walking the models directory
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseModel(path, string(data))
}

// ContentHash returns the hex sha256 of a model file's content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ModelFiles returns every .sql file under dir in lexical order.
// Hidden directories are skipped.
func ModelFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk models directory %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
