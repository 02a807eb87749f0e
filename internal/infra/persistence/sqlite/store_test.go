package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lotledger/pkg/domain"
)

func createSeed(t *testing.T, store domain.PersistentStore, number string) string {
	t.Helper()
	var id string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		seed, err := tx.CreateSeedLot(domain.SeedLot{
			Base:              domain.Base{BatchNumber: number, Stage: domain.StagePropagationSeed},
			Quantity:          10,
			RemainingQuantity: 10,
		})
		if err != nil {
			return err
		}
		id = seed.ID
		if _, err := tx.NextSequence("seed", tx.Now()); err != nil {
			return err
		}
		_, err = tx.AppendAudit(domain.AuditEvent{Operation: "intake_seeds", Entity: domain.EntitySeedLot, EntityID: seed.ID})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine(), time.Second)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	id := createSeed(t, store, "seed:19:10:2026:0001")
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine(), time.Second)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	err = reloaded.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindSeedLot(id); !ok {
			t.Fatalf("expected seed lot after reload")
		}
		if _, _, ok := v.FindByBatchNumber("seed:19:10:2026:0001"); !ok {
			t.Fatalf("expected batch number index after reload")
		}
		if got := len(v.ListAudit(id)); got != 1 {
			t.Fatalf("expected audit entry after reload, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if got := reloaded.ExportState().Sequences; len(got) != 1 {
		t.Fatalf("expected persisted sequence counter, got %v", got)
	}
}

func TestSQLiteStoreRollbackIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil, time.Second)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateSeedLot(domain.SeedLot{Base: domain.Base{BatchNumber: "seed:19:10:2026:0001"}, Quantity: 1, RemainingQuantity: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no persisted buckets, got %d", rows)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	_ = store.Close()
}

func TestSQLiteStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil, time.Second)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('seed_lots', '{not json')`); err != nil {
		t.Fatalf("seed invalid payload: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil, time.Second); err == nil {
		t.Fatalf("expected decode error on reload")
	}
}
