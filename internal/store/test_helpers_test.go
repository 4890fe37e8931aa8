package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseSyncTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestRecord creates a record whose download URL is derived from coreVersion.
func createTestRecord(coreType, mcVersion, coreVersion string) record.BuildRecord {
	return record.BuildRecord{
		SyncTime:    baseSyncTime,
		DownloadURL: fmt.Sprintf("https://example.com/%s/%s/%s.jar", coreType, mcVersion, coreVersion),
		CoreType:    coreType,
		MCVersion:   mcVersion,
		CoreVersion: coreVersion,
	}
}

// createTestRecords creates n records with core versions build0..build{n-1}.
func createTestRecords(coreType, mcVersion string, n int) []record.BuildRecord {
	out := make([]record.BuildRecord, n)
	for i := range out {
		out[i] = createTestRecord(coreType, mcVersion, fmt.Sprintf("build%d", i))
	}
	return out
}
