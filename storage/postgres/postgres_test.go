package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironshield/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("IRONSHIELD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("IRONSHIELD_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	// Clean the table for test isolation.
	pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
		pool.Close()
	})

	return NewRepository(pool)
}

func TestPostgresTrail(t *testing.T) {
	s := newTestStore(t)

	recordType := "token_rejected"

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(recordType, "r1", []byte(`{"reason":"missing_token"}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(recordType, "r1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"reason":"missing_token"}` {
			t.Errorf("unexpected data: %q", got)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		if err := s.Put(recordType, "r1", []byte("second")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(recordType, "r1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "second" {
			t.Errorf("expected overwrite, got %q", got)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		s.Put(recordType, "r3", []byte("c")) //nolint:errcheck
		s.Put(recordType, "r2", []byte("b")) //nolint:errcheck

		ids, err := s.List(recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 3 {
			t.Fatalf("expected 3 IDs, got %d", len(ids))
		}
		for i, want := range []string{"r1", "r2", "r3"} {
			if ids[i] != want {
				t.Errorf("ids[%d] = %q, want %q", i, ids[i], want)
			}
		}
	})

	t.Run("ListIsolatesTypes", func(t *testing.T) {
		s.Put("origin_rejected", "o1", []byte("x")) //nolint:errcheck
		ids, err := s.List("origin_rejected")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != "o1" {
			t.Errorf("unexpected IDs: %v", ids)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(recordType, "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(recordType, "r1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(recordType, "r1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := s.Delete(recordType, "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListEmptyType", func(t *testing.T) {
		ids, err := s.List("never_seen")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected no IDs, got %v", ids)
		}
	})
}
