// Package db loads daily bars from a file, PostgreSQL or memory.
package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// ErrNoData is returned when a source holds no candles for the request.
var ErrNoData = errors.New("db: no candles")

// BarSource returns the daily candles of symbol with from <= ts < to.
// A zero bound is open.
type BarSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]candle.Candle, error)
}

// CandleStore is a BarSource that can also be written to.
type CandleStore interface {
	BarSource
	SaveCandles(ctx context.Context, symbol string, candles []candle.Candle) error
}

// Open returns the bar source selected by cfg.Data.Source. The closer
// releases its resources.
func Open(ctx context.Context, cfg config.Config) (BarSource, io.Closer, error) {
	switch cfg.Data.Source {
	case "", "csv":
		return NewCSVSource(cfg.Data.File), nopCloser{}, nil
	case "postgres":
		conn, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgres(conn), conn, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown data source %q", config.ErrInvalidConfig, cfg.Data.Source)
}

// Load fetches, cleans and checks the candles for the configured range.
func Load(ctx context.Context, src BarSource, data config.Data) ([]candle.Candle, error) {
	from, err := parseBound(data.From)
	if err != nil {
		return nil, err
	}
	to, err := parseBound(data.To)
	if err != nil {
		return nil, err
	}
	raw, err := src.GetCandles(ctx, data.Symbol, from, to)
	if err != nil {
		return nil, err
	}
	cleaned, dropped := candle.Clean(raw)
	if dropped > 0 {
		logger := utils.Component("db")
		logger.Warn().Msgf("Load | dropped %d invalid or duplicate rows for %s", dropped, data.Symbol)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, data.Symbol)
	}
	return cleaned, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q: %v", config.ErrInvalidConfig, s, err)
	}
	return t, nil
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
