package mysql

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      core.AdapterConfig
		contains []string
	}{
		{
			name: "defaults",
			cfg:  core.AdapterConfig{Database: "shopflow", Username: "etl", Password: "pw"},
			contains: []string{
				"etl:pw@tcp(localhost:3306)/shopflow",
				"parseTime=true",
			},
		},
		{
			name: "custom host and options",
			cfg: core.AdapterConfig{
				Host:     "db.internal",
				Port:     3307,
				Database: "analytics",
				Username: "etl",
				Options:  map[string]string{"charset": "utf8mb4"},
			},
			contains: []string{"etl@tcp(db.internal:3307)/analytics", "charset=utf8mb4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN(tt.cfg)
			for _, want := range tt.contains {
				assert.Contains(t, dsn, want)
			}
		})
	}
}

func TestLoadDataSQL(t *testing.T) {
	got := loadDataSQL("shopflow_raw.orders", "raw.orders")
	assert.Equal(t,
		`LOAD DATA LOCAL INFILE 'Reader::shopflow_raw.orders' INTO TABLE raw.orders FIELDS TERMINATED BY ',' OPTIONALLY ENCLOSED BY '"' ESCAPED BY '' LINES TERMINATED BY '\n' IGNORE 1 LINES`,
		got)
}

func TestAdapter_LoadCSV(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "payments.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("payment_id,amount\np-1,10.00\np-2,N/A\np-3, 4.50 \n"), 0o600))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a := New(nil)
	a.DB = db

	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS raw.payments")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE raw.payments (`payment_id` TEXT, `amount` TEXT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("LOAD DATA LOCAL INFILE 'Reader::shopflow_raw.payments' INTO TABLE raw.payments")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := a.LoadCSV(context.Background(), "raw.payments", csvPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_NotConnected(t *testing.T) {
	_, err := New(nil).LoadCSV(context.Background(), "raw.orders", "orders.csv")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestAdapter_Dialect(t *testing.T) {
	d := New(nil).Dialect()
	assert.Equal(t, "mysql", d.Name)
	assert.Equal(t, "`x`", d.QuoteIdentifier("x"))
	assert.Contains(t, d.ToTimestamp("paid_at"), "STR_TO_DATE")
	assert.Equal(t, "(DAYOFWEEK(date_day) - 1)", d.DayOfWeek("date_day"))
}
