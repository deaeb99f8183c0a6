package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
)

func day(n int) time.Time {
	return time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(n int, close float64) candle.Candle {
	return candle.Candle{Timestamp: day(n), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100, VIX: 18}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveCandles(ctx, "spy", []candle.Candle{bar(2, 102), bar(0, 100), bar(1, 101)}))
	require.NoError(t, m.SaveCandles(ctx, "SPY", []candle.Candle{bar(1, 111)}), "upsert")

	got, err := m.GetCandles(ctx, "Spy", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day(0), got[0].Timestamp)
	assert.Equal(t, 111.0, got[1].Close)

	ranged, err := m.GetCandles(ctx, "SPY", day(1), day(2))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, day(1), ranged[0].Timestamp)

	bad := bar(3, 100)
	bad.High = 50
	assert.ErrorIs(t, m.SaveCandles(ctx, "SPY", []candle.Candle{bar(4, 1), bad}), candle.ErrInvalidCandle)
	got, _ = m.GetCandles(ctx, "SPY", time.Time{}, time.Time{})
	assert.Len(t, got, 3, "a rejected batch writes nothing")

	require.NoError(t, m.DeleteCandles(ctx, "SPY", day(2)))
	got, _ = m.GetCandles(ctx, "SPY", time.Time{}, time.Time{})
	assert.Len(t, got, 1)

	none, err := m.GetCandles(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

const sample = `Date,Open,High,Low,Close,Adj Close,Volume,VIX
2023-05-01,100,101,99,100.5,100.5,1000,17.1
2023-05-02,100.5,102,100,101.5,101.5,1100,16.9
2023-05-03,bad,102,100,101.5,101.5,1100,16.9
05/04/2023,101.5,103,101,102,102,1200,16.5
`

func TestReadCSV(t *testing.T) {
	got, err := ReadCSV(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, got, 3, "unparseable rows are skipped")
	assert.Equal(t, day(0), got[0].Timestamp)
	assert.Equal(t, 100.5, got[0].Close)
	assert.Equal(t, 17.1, got[0].VIX)
	assert.Equal(t, day(3), got[2].Timestamp)

	_, err = ReadCSV(strings.NewReader("Date,Open,High,Low,Close,Volume\n"))
	assert.ErrorContains(t, err, "vix")

	_, err = ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoData)

	reordered, err := ReadCSV(strings.NewReader("vix,close,low,high,open,volume,date\n20,10,9,11,10,5,2023-05-01\n"))
	require.NoError(t, err)
	require.Len(t, reordered, 1)
	assert.Equal(t, 20.0, reordered[0].VIX)
	assert.Equal(t, 11.0, reordered[0].High)
}

func TestCSVSourceAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spy.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	ctx := context.Background()

	src := NewCSVSource(path)
	got, err := src.GetCandles(ctx, "SPY", day(1), time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	cfg := config.Default()
	cfg.Data.File = path
	cfg.Data.From = "2023-05-02"
	opened, closer, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer closer.Close()

	candles, err := Load(ctx, opened, cfg.Data)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, day(1), candles[0].Timestamp)

	cfg.Data.From = "2030-01-01"
	_, err = Load(ctx, opened, cfg.Data)
	assert.ErrorIs(t, err, ErrNoData)

	cfg.Data.From = "yesterday"
	_, err = Load(ctx, opened, cfg.Data)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = NewCSVSource(filepath.Join(t.TempDir(), "missing.csv")).GetCandles(ctx, "SPY", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestOpenUnknownSource(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Source = "parquet"
	_, _, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestStatements(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment\n;\nSELECT 1;")
	require.Len(t, got, 2)
	assert.Equal(t, "-- header\nCREATE TABLE a (x INT)", got[0])
	assert.Equal(t, "SELECT 1", got[1])
}

func TestMigrateRejectsKeyValueConnStr(t *testing.T) {
	err := Migrate(context.Background(), "host=localhost dbname=x", "scripts/schema.sql")
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spy.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	m := NewMemory()

	n, err := Import(context.Background(), m, "SPY", path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := m.GetCandles(context.Background(), "SPY", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = Import(context.Background(), m, "SPY", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
