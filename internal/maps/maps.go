// Package maps provides the pid-keyed concurrent map behind the suspension
// registry, with a choice of lock-free or standard-library back ends.
package maps

import (
	"fmt"
	"strings"
)

// Backend names a ConcurrentMap implementation.
type Backend string

const (
	XSync   Backend = "xsync"
	Cornelk Backend = "cornelk"
	SyncMap Backend = "sync"

	// DefaultBackend is used when no backend is configured.
	DefaultBackend = XSync
)

// Backends lists the accepted backend names.
func Backends() []Backend { return []Backend{XSync, Cornelk, SyncMap} }

// ParseBackend accepts a backend name case-insensitively. The empty string
// selects DefaultBackend.
func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultBackend, nil
	}
	for _, b := range Backends() {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown map backend %q (want one of %v)", s, Backends())
}

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap is a thread-safe map keyed by integers (pids, in practice).
// LoadOrStore must be atomic in every implementation: the suspension registry
// relies on it to claim a pid exactly once across parallel workers.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	// LoadOrStore returns the existing value and true, or stores the value
	// built by valueFactory and returns it with false.
	LoadOrStore(key K, valueFactory func() V) (V, bool)
	Range(f func(key K, value V) bool)
	Len() int
}

// New returns a map using backend b. Unknown backends fall back to
// DefaultBackend; validate names with ParseBackend first.
func New[K Integer, V any](b Backend) ConcurrentMap[K, V] {
	switch b {
	case Cornelk:
		return NewCornelkMap[K, V]()
	case SyncMap:
		return NewStdSyncMap[K, V]()
	default:
		return NewXSyncMap[K, V]()
	}
}

// NewConcurrentMap returns a map using DefaultBackend.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	return New[K, V](DefaultBackend)
}
