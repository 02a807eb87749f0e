package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lotledger/internal/core"
	"lotledger/internal/infra/blob"
	blobmemory "lotledger/internal/infra/blob/memory"
	"lotledger/pkg/domain"
)

var reportDay = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

// harvestDocument builds a report for a harvest drawn from four flowering
// plants grown from seed.
func harvestDocument(t *testing.T) (Document, core.Lot) {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(nil, core.WithClock(core.ClockFunc(func() time.Time { return reportDay })))
	seed, err := svc.IntakeSeeds(ctx, core.IntakeRequest{Quantity: 4, StrainID: "strain-1", Member: "member-1"})
	require.NoError(t, err)
	flowering, err := svc.Convert(ctx, core.ConvertRequest{SourceID: seed.ID, TargetStage: domain.StageFloweringPlant, Quantity: 4, Member: "member-1"})
	require.NoError(t, err)
	harvest, err := svc.Convert(ctx, core.ConvertRequest{
		SourceID:     flowering.ID,
		TargetStage:  domain.StageHarvest,
		Quantity:     4,
		OutputWeight: decimal.RequireFromString("500"),
		Member:       "member-1",
	})
	require.NoError(t, err)

	doc, err := Build(ctx, svc, harvest.BatchNumber, reportDay)
	require.NoError(t, err)
	return doc, harvest
}

func TestBuildCollectsLineageAndHistory(t *testing.T) {
	doc, harvest := harvestDocument(t)
	assert.Equal(t, harvest.ID, doc.Subject.ID)
	require.NotEmpty(t, doc.Lineage)
	assert.Equal(t, domain.StagePropagationSeed, doc.Lineage[0].Stage)
	assert.Equal(t, "ancestor", position(doc.Lineage[0]))

	var subjectSeen bool
	for _, n := range doc.Lineage {
		if n.ID == harvest.ID {
			subjectSeen = true
			assert.Equal(t, "subject", position(n))
		}
	}
	assert.True(t, subjectSeen)

	ids := make(map[string]struct{})
	ops := make(map[string]bool)
	for _, e := range doc.History {
		_, dup := ids[e.ID]
		assert.False(t, dup, "event %s listed twice", e.ID)
		ids[e.ID] = struct{}{}
		ops[e.Operation] = true
	}
	assert.True(t, ops["intake_seeds"])
	assert.True(t, ops["convert"])
}

func TestBuildUnknownLot(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	_, err := Build(context.Background(), svc, "missing", reportDay)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenderJSON(t *testing.T) {
	doc, harvest := harvestDocument(t)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, doc))

	var decoded struct {
		Subject struct {
			BatchNumber string `json:"batch_number"`
			Weight      string `json:"weight"`
		} `json:"subject"`
		Lineage []json.RawMessage `json:"lineage"`
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, harvest.BatchNumber, decoded.Subject.BatchNumber)
	assert.Equal(t, "500", decoded.Subject.Weight)
	assert.Len(t, decoded.Lineage, len(doc.Lineage))
	assert.Len(t, decoded.History, len(doc.History))
}

func TestRenderCSV(t *testing.T) {
	doc, harvest := harvestDocument(t)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatCSV, doc))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, lineageHeader, records[0])
	split := 1 + len(doc.Lineage)
	assert.Equal(t, []string{""}, records[split])
	assert.Equal(t, historyHeader, records[split+1])
	assert.Len(t, records, split+2+len(doc.History))

	var found bool
	for _, rec := range records[1:split] {
		if rec[2] == harvest.BatchNumber {
			found = true
			assert.Equal(t, "subject", rec[0])
			assert.Equal(t, "500", rec[8])
		}
	}
	assert.True(t, found)
}

func TestRenderXLSX(t *testing.T) {
	doc, harvest := harvestDocument(t)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatXLSX, doc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{lineageSheet, historySheet}, f.GetSheetList())
	rows, err := f.GetRows(lineageSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1+len(doc.Lineage))
	assert.Equal(t, lineageHeader, rows[0])
	var found bool
	for _, row := range rows[1:] {
		if row[2] == harvest.BatchNumber {
			found = true
			assert.Equal(t, "500", row[8])
		}
	}
	assert.True(t, found)

	history, err := f.GetRows(historySheet)
	require.NoError(t, err)
	assert.Len(t, history, 1+len(doc.History))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	_, err = ParseFormat("pdf")
	require.Error(t, err)
	require.Error(t, Render(io.Discard, Format("pdf"), Document{}))
}

func TestPublisherKeysAndCollisions(t *testing.T) {
	ctx := context.Background()
	doc, harvest := harvestDocument(t)
	store := blobmemory.New()
	pub := NewPublisher(store)

	first, err := pub.Publish(ctx, doc, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "reports/"+harvest.BatchNumber+"/20261019T093000Z.csv", first.Key)
	assert.Equal(t, "text/csv", first.ContentType)
	assert.Equal(t, harvest.ID, first.Metadata["lot_id"])

	second, err := pub.Publish(ctx, doc, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "reports/"+harvest.BatchNumber+"/20261019T093000Z-2.csv", second.Key)

	_, err = pub.Publish(ctx, doc, FormatJSON)
	require.NoError(t, err)

	listed, err := pub.List(ctx, harvest.BatchNumber)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	_, rc, err := store.Get(ctx, first.Key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Contains(t, string(data), harvest.BatchNumber)
}

func TestPublisherGivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	doc := Document{GeneratedAt: reportDay, Subject: core.Lot{BatchNumber: "HARVEST:19:10:2026:0001"}}
	store := blobmemory.New()
	for n := 0; n < maxKeyAttempts; n++ {
		_, err := store.Put(ctx, Key(doc, FormatJSON, n), bytes.NewReader(nil), blob.PutOptions{})
		require.NoError(t, err)
	}
	_, err := NewPublisher(store).Publish(ctx, doc, FormatJSON)
	require.ErrorIs(t, err, blob.ErrExists)
}
