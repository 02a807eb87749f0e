package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"lotledger/pkg/domain"
)

func TestMapErrorContention(t *testing.T) {
	for _, code := range []string{sqlStateLockNotAvailable, sqlStateDeadlockDetected, sqlStateSerializationFailure} {
		err := mapError("lock", "lot-1", time.Second, &pgconn.PgError{Code: code})
		if !errors.Is(err, domain.ErrContention) {
			t.Fatalf("code %s: expected contention, got %v", code, err)
		}
		if !domain.Retryable(err) {
			t.Fatalf("code %s: expected retryable", code)
		}
	}
}

func TestMapErrorWrapsOthers(t *testing.T) {
	if mapError("noop", "", 0, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	err := mapError("insert lot", "x", 0, &pgconn.PgError{Code: sqlStateUniqueViolation, ConstraintName: "lots_batch_number_key"})
	if errors.Is(err, domain.ErrContention) {
		t.Fatalf("unique violation is not contention")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected wrapped pg error, got %v", err)
	}
}

// openTestStore connects to LOTLEDGER_TEST_POSTGRES_DSN. Each test works on
// batch numbers unique to its run so a shared database can be reused.
func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dsn := os.Getenv("LOTLEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LOTLEDGER_TEST_POSTGRES_DSN not set")
	}
	store, err := NewStore(context.Background(), dsn, nil, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func uniqueNumber(prefix string) string {
	return fmt.Sprintf("%s:19:10:2026:%d", prefix, time.Now().UnixNano()%1_000_000_000)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	number := uniqueNumber("seed")
	var id string
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		seed, err := tx.CreateSeedLot(domain.SeedLot{
			Base:              domain.Base{BatchNumber: number, Stage: domain.StagePropagationSeed},
			Quantity:          100,
			RemainingQuantity: 100,
		})
		if err != nil {
			return err
		}
		id = seed.ID
		if _, err := tx.UpdateSeedLot(seed.ID, func(s *domain.SeedLot) error {
			s.RemainingQuantity = 70
			s.ConvertedQuantity = 30
			return nil
		}); err != nil {
			return err
		}
		_, err = tx.AppendAudit(domain.AuditEvent{Operation: "intake_seeds", Entity: domain.EntitySeedLot, EntityID: seed.ID})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		seed, ok := v.FindSeedLot(id)
		if !ok || seed.RemainingQuantity != 70 {
			t.Fatalf("unexpected seed %+v", seed)
		}
		if kind, got, ok := v.FindByBatchNumber(number); !ok || kind != domain.EntitySeedLot || got != id {
			t.Fatalf("batch number lookup failed")
		}
		if len(v.ListAudit(id)) != 1 {
			t.Fatalf("expected audit entry")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestPostgresStoreRejectsDuplicateBatchNumber(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	number := uniqueNumber("dup")
	create := func() error {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateSeedLot(domain.SeedLot{Base: domain.Base{BatchNumber: number}, Quantity: 1, RemainingQuantity: 1})
			return err
		})
		return err
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); err == nil {
		t.Fatalf("expected unique violation")
	}
}

func TestPostgresSequencesUnderConcurrency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				var err error
				n, err = tx.NextSequence(key, day)
				return err
			})
			if err != nil {
				t.Errorf("transaction: %v", err)
				return
			}
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != workers {
		t.Fatalf("expected %d distinct sequences, got %d", workers, len(seen))
	}
}

func TestPostgresLockTimeoutIsContention(t *testing.T) {
	store := openTestStore(t, WithLockTimeout(50*time.Millisecond))
	ctx := context.Background()
	var id string
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		seed, err := tx.CreateSeedLot(domain.SeedLot{Base: domain.Base{BatchNumber: uniqueNumber("lock")}, Quantity: 1, RemainingQuantity: 1})
		id = seed.ID
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if err := tx.Lock(id); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Lock(id)
	})
	close(release)
	<-done
	if !errors.Is(err, domain.ErrContention) {
		t.Fatalf("expected contention, got %v", err)
	}
}
