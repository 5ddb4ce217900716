package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

type reportYAML struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Chart       string `yaml:"chart"`
	X           string `yaml:"x"`
	Y           string `yaml:"y"`
	Order       int    `yaml:"order"`
}

var reportFields = []string{"title", "description", "chart", "x", "y", "order"}

// ParseReport parses the content of a report file.
func ParseReport(path, content string) (*core.Report, error) {
	yamlText, body, _ := splitFrontmatter(content)

	var cfg reportYAML
	if err := decodeStrict(path, yamlText, reportFields, &cfg); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if body == "" {
		return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("report %q has no SQL", name)}
	}

	chart := cfg.Chart
	switch chart {
	case "":
		chart = core.ChartTable
	case core.ChartTable:
	case core.ChartBar:
		if cfg.X == "" || cfg.Y == "" {
			return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("bar chart %q needs x and y", name)}
		}
	default:
		return nil, &FrontmatterParseError{Path: path, Err: fmt.Errorf("invalid chart %q (must be table or bar)", chart)}
	}

	title := cfg.Title
	if title == "" {
		title = name
	}

	return &core.Report{
		Name:        name,
		Title:       title,
		Description: cfg.Description,
		Chart:       chart,
		X:           cfg.X,
		Y:           cfg.Y,
		Order:       cfg.Order,
		FilePath:    path,
		SQL:         body,
	}, nil
}

// LoadReports parses every .sql file directly inside dir, ordered by
// Order then Name. A missing directory yields no reports.
func LoadReports(dir string) ([]*core.Report, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var reports []*core.Report
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path) //nolint:gosec // path from directory listing
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r, err := ParseReport(path, string(data))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, r)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Order != reports[j].Order {
			return reports[i].Order < reports[j].Order
		}
		return reports[i].Name < reports[j].Name
	})
	return reports, errors.Join(errs...)
}
