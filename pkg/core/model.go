package core

import "fmt"

// Layer is a medallion layer.
type Layer string

// Layer constants, in medallion order.
const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// RawSchema is the schema raw CSV sources are loaded into.
const RawSchema = "raw"

// Layers lists the medallion layers in order.
var Layers = []Layer{LayerBronze, LayerSilver, LayerGold}

// Rank returns the position of the layer in medallion order, or -1.
func (l Layer) Rank() int {
	for i, layer := range Layers {
		if layer == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	return l.Rank() >= 0
}

// ParseLayer converts a string into a Layer.
func ParseLayer(s string) (Layer, error) {
	l := Layer(s)
	if !l.Valid() {
		return "", fmt.Errorf("invalid layer %q (must be one of: bronze, silver, gold)", s)
	}
	return l, nil
}

// Model represents a SQL model (transformation unit).
// Persistence-specific fields (ID, ContentHash, timestamps) belong in PersistedModel.
type Model struct {
	// Path is the model path (e.g., "silver.slv_orders")
	Path string
	// Name is the model name (filename without extension)
	Name string
	// FilePath is the absolute path to the SQL file
	FilePath string
	// Layer is the medallion layer the model belongs to
	Layer Layer
	// Materialized defines how the model is stored: table, view, incremental
	Materialized string
	// UniqueKey for incremental models
	UniqueKey string
	// Owner is the team/person responsible for this model
	Owner string
	// Description is a human-readable description of the model
	Description string
	// Tags are metadata labels for selection
	Tags []string
	// Meta contains custom extension fields
	Meta map[string]any
	// Tests contains data test configurations
	Tests []TestConfig
	// Refs are the model names referenced with ref()
	Refs []string
	// Sources are the source names referenced with source()
	Sources []string
	// SQL is the templated SQL body (excluding frontmatter)
	SQL string
	// RawContent is the full file content including frontmatter
	RawContent string
	// HasFrontmatter indicates if YAML frontmatter was found
	HasFrontmatter bool
}

// HasTag reports whether the model carries tag.
func (m *Model) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Source is a raw table loaded from a CSV file.
type Source struct {
	Name        string
	File        string
	Description string
	Columns     []string
	Tests       []TestConfig
}

// Report is an analytical query rendered as a dashboard panel.
type Report struct {
	Name        string
	Title       string
	Description string
	Chart       string
	X           string
	Y           string
	Order       int
	FilePath    string
	SQL         string
}

// Chart types for reports.
const (
	ChartTable = "table"
	ChartBar   = "bar"
)
