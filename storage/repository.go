// Package storage provides the persistence abstraction for the forgery
// audit trail.
package storage

import "errors"

// ErrNotFound is returned when no record exists under the requested key.
var ErrNotFound = errors.New("record not found")

// Repository stores audit records as opaque bytes keyed by record type and
// ID. Implementations must be safe for concurrent use. List returns IDs in
// ascending lexicographic order; callers wanting newest-first give records
// chronologically sorting IDs and walk the result backwards.
type Repository interface {
	Put(recordType string, recordID string, data []byte) error
	Get(recordType string, recordID string) ([]byte, error)
	List(recordType string) ([]string, error)
	Delete(recordType string, recordID string) error
}
