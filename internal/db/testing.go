// Test helpers for packages that need an index. In-memory databases are
// far faster than file-based ones and fully isolated per test.
package db

import (
	"testing"
)

// NewTestIndex creates an in-memory index with migrations applied. The
// index is closed automatically when the test completes.
func NewTestIndex(t testing.TB) *Index {
	t.Helper()

	idx, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test index: %v", err)
	}

	t.Cleanup(func() {
		_ = idx.Close()
	})

	return idx
}
