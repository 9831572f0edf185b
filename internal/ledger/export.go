package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

var csvHeader = []string{"id", "amount", "description", "email", "created_at", "status", "source"}

// WriteCSV streams transactions to w in the projection's order, header first.
// Timestamps are RFC 3339 UTC so the export round-trips through spreadsheet
// tools without locale ambiguity.
func WriteCSV(w io.Writer, transactions []model.UnifiedTransaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range transactions {
		record := []string{
			t.ID,
			t.Amount,
			t.Description,
			t.Email,
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.Status,
			t.Source,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record %s: %w", t.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
