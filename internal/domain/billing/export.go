package billing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ClaimLineRow is the Parquet layout of an exported claim line. Amounts are
// written as fixed two-decimal strings so no precision is lost.
type ClaimLineRow struct {
	ClaimID       string `parquet:"claim_id"`
	LineNumber    int32  `parquet:"line_number"`
	ProcedureCode string `parquet:"procedure_code"`
	ServiceDate   string `parquet:"service_date"`
	ChargeAmount  string `parquet:"charge_amount"`
	Units         int32  `parquet:"units"`
}

func claimLineRow(l *ClaimLine) ClaimLineRow {
	return ClaimLineRow{
		ClaimID:       l.ClaimID.String(),
		LineNumber:    int32(l.LineNumber),
		ProcedureCode: l.ProcedureCode,
		ServiceDate:   l.ServiceDate.Format("2006-01-02"),
		ChargeAmount:  l.ChargeAmount.StringFixed(2),
		Units:         int32(l.Units),
	}
}

const exportBatchSize = 1000

// ExportClaimLines writes every claim line serviced in [from, to] to w as
// Parquet and returns the number of rows written.
func (s *Service) ExportClaimLines(ctx context.Context, from, to time.Time, w io.Writer) (int, error) {
	if err := checkRange(from, to); err != nil {
		return 0, err
	}
	writer := parquet.NewGenericWriter[ClaimLineRow](w)
	batch := make([]ClaimLineRow, 0, exportBatchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.Write(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.lines.EachByServiceDate(ctx, from, to, func(l *ClaimLine) error {
		batch = append(batch, claimLineRow(l))
		if len(batch) == exportBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		writer.Close()
		return total, err
	}
	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}
	s.log.Info().Int("rows", total).Time("from", from).Time("to", to).Msg("claim lines exported")
	return total, nil
}
