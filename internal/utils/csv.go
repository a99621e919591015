package utils

import (
	"encoding/csv"
	"os"
	"time"

	"coinwatch/internal/domain"
)

// WriteTotalsToCSV dumps the total-value series to a CSV file for offline
// charting.
func WriteTotalsToCSV(snapshots []domain.TotalSnapshot, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"date", "exchange", "total"})

	for _, snap := range snapshots {
		writer.Write([]string{
			snap.Date.UTC().Format(time.RFC3339),
			snap.Exchange,
			snap.Total.String(),
		})
	}
	return writer.Error()
}
