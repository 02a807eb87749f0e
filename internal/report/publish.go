package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"lotledger/internal/infra/blob"
)

// keyTimeLayout names a report by its generation time.
const keyTimeLayout = "20060102T150405Z"

// maxKeyAttempts bounds the suffixes tried when reports of one lot are
// generated within the same second.
const maxKeyAttempts = 16

// Publisher renders documents and stores them under
// reports/<batch-number>/<timestamp>.<ext>.
type Publisher struct {
	store blob.Store
}

func NewPublisher(store blob.Store) *Publisher {
	return &Publisher{store: store}
}

// Key returns the object key of the n-th report of doc generated in the same
// second, counting from zero.
func Key(doc Document, f Format, n int) string {
	stamp := doc.GeneratedAt.UTC().Format(keyTimeLayout)
	if n > 0 {
		stamp = fmt.Sprintf("%s-%d", stamp, n+1)
	}
	return fmt.Sprintf("reports/%s/%s.%s", doc.Subject.BatchNumber, stamp, f)
}

// Publish renders doc and stores it. Reports are write-once, so a clash with
// an existing key moves on to the next suffix.
func (p *Publisher) Publish(ctx context.Context, doc Document, f Format) (blob.Info, error) {
	var buf bytes.Buffer
	if err := Render(&buf, f, doc); err != nil {
		return blob.Info{}, err
	}
	opts := blob.PutOptions{
		ContentType: f.ContentType(),
		Metadata: map[string]string{
			"lot_id":       doc.Subject.ID,
			"batch_number": doc.Subject.BatchNumber,
			"stage":        string(doc.Subject.Stage),
			"generated_at": doc.GeneratedAt.UTC().Format(time.RFC3339),
		},
	}
	for n := 0; n < maxKeyAttempts; n++ {
		info, err := p.store.Put(ctx, Key(doc, f, n), bytes.NewReader(buf.Bytes()), opts)
		if errors.Is(err, blob.ErrExists) {
			continue
		}
		if err != nil {
			return blob.Info{}, fmt.Errorf("publish report: %w", err)
		}
		return info, nil
	}
	return blob.Info{}, fmt.Errorf("publish report: %w: %s", blob.ErrExists, Key(doc, f, 0))
}

// List returns the published reports of one lot, oldest first.
func (p *Publisher) List(ctx context.Context, batchNumber string) ([]blob.Info, error) {
	return p.store.List(ctx, "reports/"+batchNumber+"/")
}
