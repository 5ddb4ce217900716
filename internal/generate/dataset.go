package generate

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// Table is one generated entity table as CSV-ready strings.
type Table struct {
	Name    string
	Key     string
	Columns []string
	Rows    [][]string
}

// Dataset is the full generated output.
type Dataset struct {
	Config      Config
	Tables      []*Table
	Noise       map[NoiseKind]int
	SCDVersions int
}

// Table returns the table with the given name, or nil.
func (d *Dataset) Table(name string) *Table {
	for _, t := range d.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

type generator struct {
	cfg   Config
	rng   *rand.Rand
	ids   io.Reader
	noise map[NoiseKind]int

	customerList []customer
	productList  []product
	sessionList  []session
	purchases    map[int]bool
	scdVersions  int
}

// Generate builds every table in memory from cfg.
func Generate(ctx context.Context, cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], cfg.Seed)

	g := &generator{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		ids:       rand.NewChaCha8(seed),
		noise:     make(map[NoiseKind]int, len(NoiseKinds)),
		purchases: make(map[int]bool),
	}
	for _, k := range NoiseKinds {
		g.noise[k] = 0
	}

	records := make(map[string][]record, len(TableNames))
	records[TableCustomers] = g.customers()
	records[TableProducts] = g.products()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records[TableOrders], records[TableOrderItems], records[TablePayments] = g.orders()
	records[TableSessions], records[TableEvents] = g.sessions()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds := &Dataset{Config: cfg}
	for _, name := range TableNames {
		ds.Tables = append(ds.Tables, g.renderTable(specs[name], records[name]))
	}
	ds.Noise = g.noise
	ds.SCDVersions = g.scdVersions
	return ds, nil
}

// Sink receives generated tables.
type Sink interface {
	WriteTable(ctx context.Context, t *Table) (TableFile, error)
}

// TableFile describes one written table.
type TableFile struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
	SHA256   string `json:"sha256"`
}

// Manifest summarizes a written dataset.
type Manifest struct {
	Seed        uint64            `json:"seed"`
	Tables      []TableFile       `json:"tables"`
	Noise       map[NoiseKind]int `json:"noise"`
	SCDVersions int               `json:"scd_versions"`
}

// ManifestFile is the manifest's file name inside a CSV output directory.
const ManifestFile = "_manifest.json"

// Write sends every table to sink in parallel.
func (d *Dataset) Write(ctx context.Context, sink Sink) (*Manifest, error) {
	files := make([]TableFile, len(d.Tables))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range d.Tables {
		g.Go(func() error {
			f, err := sink.WriteTable(gctx, t)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", t.Name, err)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Manifest{
		Seed:        d.Config.Seed,
		Tables:      files,
		Noise:       maps.Clone(d.Noise),
		SCDVersions: d.SCDVersions,
	}, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided data directory
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
