package generate

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Customers = 40
	cfg.Products = 15
	cfg.Orders = 120
	cfg.Sessions = 80
	cfg.Days = 14
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative count", func(c *Config) { c.Orders = -1 }, "orders must be >= 0"},
		{"noise above one", func(c *Config) { c.NoiseRate = 1.5 }, "noise_rate must be in [0, 1]"},
		{"noise negative", func(c *Config) { c.NoiseRate = -0.1 }, "noise_rate"},
		{"noise NaN", func(c *Config) { c.NoiseRate = math.NaN() }, "noise_rate must be in [0, 1]"},
		{"scd rate NaN", func(c *Config) { c.SCDRate = math.NaN() }, "scd_rate"},
		{"zero days", func(c *Config) { c.Days = 0 }, "days must be >= 1"},
		{"orders without products", func(c *Config) { c.Products = 0 }, "at least one customer and one product"},
		{"missing start", func(c *Config) { c.StartDate = time.Time{} }, "start date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Generate(context.Background(), Config{})
	require.ErrorContains(t, err, "invalid generator config")
}

func TestGenerate_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := Generate(ctx, smallConfig())
	require.NoError(t, err)
	b, err := Generate(ctx, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Tables, b.Tables)
	assert.Equal(t, a.Noise, b.Noise)

	other := smallConfig()
	other.Seed = 7
	c, err := Generate(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, a.Table(TableOrders).Rows, c.Table(TableOrders).Rows)

	dirA, dirB := t.TempDir(), t.TempDir()
	ma, err := a.Write(ctx, CSVSink{Dir: dirA})
	require.NoError(t, err)
	mb, err := b.Write(ctx, CSVSink{Dir: dirB})
	require.NoError(t, err)
	for i := range ma.Tables {
		assert.Equal(t, ma.Tables[i].SHA256, mb.Tables[i].SHA256, ma.Tables[i].Name)
	}
}

func TestGenerate_CleanData(t *testing.T) {
	cfg := smallConfig()
	cfg.NoiseRate = 0
	cfg.SCDRate = 0

	ds, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	for _, kind := range NoiseKinds {
		assert.Zero(t, ds.Noise[kind], kind)
	}
	require.Len(t, ds.Tables, len(TableNames))

	customers := ds.Table(TableCustomers)
	assert.Len(t, customers.Rows, cfg.Customers)
	assert.Len(t, ds.Table(TableProducts).Rows, cfg.Products)

	orders := ds.Table(TableOrders)
	require.Len(t, orders.Rows, cfg.Orders)
	assertUniqueKeys(t, orders)
	assertUniqueKeys(t, ds.Table(TablePayments))
	assertUniqueKeys(t, ds.Table(TableEvents))

	// Order totals equal item subtotal + shipping - discount.
	subtotals := map[string]decimal.Decimal{}
	items := ds.Table(TableOrderItems)
	for _, row := range items.Rows {
		productID, _ := strconv.Atoi(row[2])
		assert.LessOrEqual(t, productID, cfg.Products, "no orphans without noise")
		subtotals[row[1]] = subtotals[row[1]].Add(decimal.RequireFromString(row[5]))
	}
	statuses := map[string]bool{"pending": true, "paid": true, "shipped": true, "delivered": true, "cancelled": true, "returned": true}
	for _, row := range orders.Rows {
		shipping := decimal.RequireFromString(row[6])
		discount := decimal.RequireFromString(row[7])
		total := decimal.RequireFromString(row[8])
		assert.True(t, subtotals[row[0]].Add(shipping).Sub(discount).Equal(total), "order %s total", row[0])
		assert.True(t, statuses[row[3]], row[3])
		_, err := time.Parse(TimestampLayout, row[2])
		require.NoError(t, err)
	}

	sessions := ds.Table(TableSessions)
	assert.GreaterOrEqual(t, len(sessions.Rows), cfg.Sessions)
	assertUniqueKeys(t, sessions)
}

func TestGenerate_Noise(t *testing.T) {
	cfg := smallConfig()
	cfg.NoiseRate = 0.3
	cfg.SCDRate = 0.5

	ds, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	for _, kind := range NoiseKinds {
		assert.Positive(t, ds.Noise[kind], kind)
	}
	assert.Positive(t, ds.SCDVersions)

	customers := ds.Table(TableCustomers)
	assert.Len(t, customers.Rows, cfg.Customers+ds.SCDVersions)

	orders := ds.Table(TableOrders)
	dupes := len(orders.Rows) - cfg.Orders
	assert.Positive(t, dupes)

	var sawMalformed, sawMixed bool
	for _, row := range orders.Rows {
		for _, v := range row[6:9] {
			if v == "N/A" || v == "" || strings.HasPrefix(v, "$") || strings.HasPrefix(v, " ") {
				sawMalformed = true
			}
		}
		if _, err := time.Parse(TimestampLayout, row[2]); err != nil {
			sawMixed = true
		}
	}
	assert.True(t, sawMalformed)
	assert.True(t, sawMixed)
}

func TestGenerate_ZeroCounts(t *testing.T) {
	cfg := smallConfig()
	cfg.Customers, cfg.Products, cfg.Orders, cfg.Sessions = 0, 0, 0, 0

	ds, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	manifest, err := ds.Write(context.Background(), CSVSink{Dir: dir})
	require.NoError(t, err)
	require.Len(t, manifest.Tables, len(TableNames))

	for _, tf := range manifest.Tables {
		assert.Zero(t, tf.Rows)
		records := readCSV(t, tf.Location)
		require.Len(t, records, 1, "header only")
		assert.Equal(t, specs[tf.Name].columns, records[0])
	}
}

func TestCSVSink_WriteAndManifest(t *testing.T) {
	ds, err := Generate(context.Background(), smallConfig())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "raw")
	manifest, err := ds.Write(context.Background(), CSVSink{Dir: dir})
	require.NoError(t, err)

	for i, tf := range manifest.Tables {
		assert.Equal(t, TableNames[i], tf.Name)
		assert.Equal(t, filepath.Join(dir, tf.Name+".csv"), tf.Location)
		records := readCSV(t, tf.Location)
		assert.Len(t, records, tf.Rows+1)
		assert.Len(t, tf.SHA256, 64)
	}

	path := filepath.Join(dir, ManifestFile)
	require.NoError(t, manifest.Save(path))
	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, manifest.Noise, loaded.Noise)
	assert.Equal(t, manifest.Tables, loaded.Tables)
}

type fakeWriter struct {
	mu       sync.Mutex
	topic    string
	messages []kafka.Message
	calls    int
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	var mu sync.Mutex
	writers := map[string]*fakeWriter{}
	sink := KafkaSink{
		TopicPrefix: "shopflow.",
		BatchSize:   10,
		newWriter: func(topic string) messageWriter {
			mu.Lock()
			defer mu.Unlock()
			w := &fakeWriter{topic: topic}
			writers[topic] = w
			return w
		},
	}

	ds, err := Generate(context.Background(), smallConfig())
	require.NoError(t, err)
	manifest, err := ds.Write(context.Background(), sink)
	require.NoError(t, err)
	require.Len(t, writers, len(TableNames))

	orders := writers["shopflow.orders"]
	require.NotNil(t, orders)
	assert.True(t, orders.closed)
	assert.Len(t, orders.messages, len(ds.Table(TableOrders).Rows))
	assert.Equal(t, (len(orders.messages)+9)/10, orders.calls)

	first := orders.messages[0]
	var payload map[string]string
	require.NoError(t, json.Unmarshal(first.Value, &payload))
	assert.Equal(t, string(first.Key), payload["order_id"])
	assert.Contains(t, payload, "order_total")

	for _, tf := range manifest.Tables {
		assert.Equal(t, "kafka://shopflow."+tf.Name, tf.Location)
	}

	_, err = KafkaSink{}.WriteTable(context.Background(), ds.Table(TableOrders))
	require.ErrorContains(t, err, "at least one broker")
}

func TestThousands(t *testing.T) {
	tests := map[string]string{
		"0":        "0.00",
		"12.5":     "12.50",
		"1234.5":   "1,234.50",
		"1234567":  "1,234,567.00",
		"-9876.01": "-9,876.01",
	}
	for in, want := range tests {
		assert.Equal(t, want, thousands(decimal.RequireFromString(in)), in)
	}
}

func assertUniqueKeys(t *testing.T, table *Table) {
	t.Helper()
	seen := map[string]bool{}
	for _, row := range table.Rows {
		require.False(t, seen[row[0]], "duplicate %s key %s", table.Name, row[0])
		seen[row[0]] = true
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}
