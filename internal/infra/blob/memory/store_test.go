package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"lotledger/internal/infra/blob"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "reports/a/1.json", strings.NewReader(`{"ok":true}`), blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"lot": "a"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "reports/a/1.json", strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "reports/a/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"ok":true}` || got.ContentType != "application/json" || got.Metadata["lot"] != "a" {
		t.Fatalf("unexpected object %+v %q", got, data)
	}
	got.Metadata["lot"] = "mutated"
	head, err := s.Head(ctx, "reports/a/1.json")
	if err != nil || head.Metadata["lot"] != "a" {
		t.Fatalf("head leaked mutation: %+v %v", head, err)
	}

	if _, err := s.Put(ctx, "reports/b/1.csv", bytes.NewReader(nil), blob.PutOptions{}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	list, err := s.List(ctx, "reports/a/")
	if err != nil || len(list) != 1 || list[0].Key != "reports/a/1.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if all, _ := s.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected two objects, got %d", len(all))
	}

	if ok, _ := s.Delete(ctx, "reports/a/1.json"); !ok {
		t.Fatalf("expected delete to report existing object")
	}
	if ok, _ := s.Delete(ctx, "reports/a/1.json"); ok {
		t.Fatalf("second delete must report missing")
	}
	if _, err := s.Head(ctx, "reports/a/1.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "reports/a/1.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	s := New()
	for _, key := range []string{"", "/abs", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, blob.ErrInvalidKey) {
			t.Fatalf("%q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStoreConcurrentPutSameKey(t *testing.T) {
	s := New()
	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(context.Background(), "same", strings.NewReader("x"), blob.PutOptions{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
