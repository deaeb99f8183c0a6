package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// SaveResult writes the trade log and equity curve of res into dir as
// <prefix>_trades.csv and <prefix>_equity.csv.
func SaveResult(dir, prefix string, res backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tradeRows := [][]string{{"position_id", "entry_date", "exit_date", "entry_price", "exit_price",
		"shares", "remaining_shares", "gross_pnl", "pnl", "entry_commission", "exit_commission",
		"duration_days", "reason"}}
	for _, t := range res.Trades {
		tradeRows = append(tradeRows, []string{
			strconv.Itoa(t.PositionID),
			t.EntryDate.Format(time.DateOnly),
			t.ExitDate.Format(time.DateOnly),
			ff(t.EntryPrice),
			ff(t.ExitPrice),
			strconv.Itoa(t.Shares),
			strconv.Itoa(t.RemainingShares),
			ff(t.GrossPnL),
			ff(t.PnL),
			ff(t.EntryCommission),
			ff(t.ExitCommission),
			strconv.Itoa(t.DurationDays),
			t.Reason,
		})
	}

	equityRows := [][]string{{"date", "equity", "log_return"}}
	for i, d := range res.Dates {
		row := []string{d.Format(time.DateOnly), ff(res.Equity[i]), ""}
		if i < len(res.Returns) {
			row[2] = strconv.FormatFloat(res.Returns[i], 'f', 8, 64)
		}
		equityRows = append(equityRows, row)
	}

	if err := saveCSV(filepath.Join(dir, prefix+"_trades.csv"), tradeRows); err != nil {
		return err
	}
	return saveCSV(filepath.Join(dir, prefix+"_equity.csv"), equityRows)
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// saveCSV saves data to a CSV file
func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	logger := utils.Component("report")
	logger.Info().Msgf("saveCSV | saved %d rows to %s", len(rows)-1, filename)
	return nil
}
