package core

import (
	"context"
	"fmt"
	"time"

	"lotledger/pkg/domain"
)

// batchDay is the calendar day, in the service location, that keys the
// sequence counters of a transaction.
func (s *Service) batchDay(tx domain.Transaction) time.Time {
	local := tx.Now().In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// nextBatchNumber reserves the next code for prefix on the transaction's day.
// The store serializes the counter with the same locks used for lots, so two
// transactions never draw the same sequence.
func (s *Service) nextBatchNumber(tx domain.Transaction, prefix string) (string, error) {
	if prefix == "" {
		return "", &domain.ValidationError{Field: "stage", Reason: "stage has no batch number prefix"}
	}
	day := s.batchDay(tx)
	seq, err := tx.NextSequence(prefix, day)
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", prefix, err)
	}
	return domain.FormatBatchNumber(prefix, day, seq), nil
}

// ReserveBatchNumber draws the next batch number for stage without creating
// a lot, for labels printed ahead of a conversion. The sequence value is
// consumed even if the label is never used.
func (s *Service) ReserveBatchNumber(ctx context.Context, stage domain.Stage) (string, error) {
	if !stage.Valid() {
		return "", &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	var number string
	_, err := s.run(ctx, "reserve_batch_number", func(tx domain.Transaction, sub *subject) error {
		var err error
		number, err = s.nextBatchNumber(tx, stage.Prefix())
		sub.set("", number)
		return err
	})
	return number, err
}
