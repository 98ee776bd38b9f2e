package memory

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/jmcleod/ironshield/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	recordType := "rejection"
	recordID := "0001"
	data := []byte(`{"reason":"invalid_signature"}`)

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(recordType, recordID, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Get returned %q, want %q", got, data)
		}

		// Test isolation (cloning)
		got[0] = 'X'
		got2, _ := repo.Get(recordType, recordID)
		if got2[0] == 'X' {
			t.Error("memory repository should return clones")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordID)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		_, err = repo.Get(recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		for _, id := range []string{"0003", "0002", "0004"} {
			if err := repo.Put(recordType, id, data); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		repo.Put("other", "zzz", data)

		ids, err := repo.List(recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"0001", "0002", "0003", "0004"}
		if fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("List = %v, want %v", ids, want)
		}
	})

	t.Run("ListUnknownType", func(t *testing.T) {
		ids, err := repo.List("unknown")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected no ids, got %v", ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(recordType, "0001"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(recordType, "0001"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(recordType, "0001"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for double delete, got %v", err)
		}
	})
}
