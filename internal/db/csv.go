package db

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/utils"
)

var requiredColumns = []string{"date", "open", "high", "low", "close", "volume", "vix"}

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}

// CSVSource reads one symbol's daily bars from a CSV file with a header
// row naming at least Date, Open, High, Low, Close, Volume and VIX.
// Column order and case do not matter. The symbol argument of GetCandles
// is ignored.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) GetCandles(ctx context.Context, _ string, from, to time.Time) ([]candle.Candle, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	all, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	out := all[:0]
	for _, c := range all {
		if inRange(c.Timestamp, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ReadCSV parses candles from r. Rows whose fields cannot be parsed are
// skipped; a missing required column is an error.
func ReadCSV(r io.Reader) ([]candle.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoData
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	cols := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = pos
	}

	logger := utils.Component("db")
	var out []candle.Candle
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := parseRecord(record, cols)
		if err != nil {
			logger.Debug().Msgf("ReadCSV | skipping line %d: %v", line, err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRecord(record []string, cols []int) (candle.Candle, error) {
	var c candle.Candle
	for _, pos := range cols {
		if pos >= len(record) {
			return c, fmt.Errorf("short row")
		}
	}
	ts, err := parseDate(record[cols[0]])
	if err != nil {
		return c, err
	}
	c.Timestamp = ts
	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.VIX}
	for i, dst := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[cols[i+1]]), 64)
		if err != nil {
			return c, err
		}
		*dst = v
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
