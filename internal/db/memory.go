package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/momentum-validator/internal/candle"
)

// Memory is an in-process CandleStore.
type Memory struct {
	mu sync.RWMutex

	// candles by upper-case symbol, then by UTC timestamp
	candles map[string]map[time.Time]candle.Candle
}

func NewMemory() *Memory {
	return &Memory{candles: make(map[string]map[time.Time]candle.Candle)}
}

// SaveCandles upserts candles for symbol. Invalid candles abort the whole
// batch before anything is written.
func (m *Memory) SaveCandles(ctx context.Context, symbol string, candles []candle.Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(symbol)
	bySymbol, ok := m.candles[key]
	if !ok {
		bySymbol = make(map[time.Time]candle.Candle)
		m.candles[key] = bySymbol
	}
	for _, c := range candles {
		c.Timestamp = c.Timestamp.UTC()
		bySymbol[c.Timestamp] = c
	}
	return nil
}

func (m *Memory) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []candle.Candle
	for ts, c := range m.candles[strings.ToUpper(symbol)] {
		if inRange(ts, from, to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DeleteCandles removes the candles of symbol strictly before before.
func (m *Memory) DeleteCandles(ctx context.Context, symbol string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ts := range m.candles[strings.ToUpper(symbol)] {
		if ts.Before(before) {
			delete(m.candles[strings.ToUpper(symbol)], ts)
		}
	}
	return nil
}
