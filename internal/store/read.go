package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/version"
)

// StoredRecord is a persisted build together with its insertion sequence.
type StoredRecord struct {
	Seq int64 `json:"seq"`
	record.BuildRecord
}

// ListVersions returns the mc_versions of coreType that have at least one
// build, newest first.
//
// Returns an empty slice (not nil) if the core type has no tables.
func (s *Store) ListVersions(ctx context.Context, coreType string) ([]string, error) {
	versions, err := tableVersions(ctx, s.db, coreType)
	if err != nil {
		return nil, &StorageError{Op: "list versions", CoreType: coreType, Err: err}
	}
	return s.sortVersions(versions, "core_type", coreType), nil
}

// ListBuilds returns the distinct core_versions of one core table, newest
// first. A missing table yields a *NotFoundError.
func (s *Store) ListBuilds(ctx context.Context, coreType, mcVersion string) ([]string, error) {
	exists, err := s.tableExists(ctx, coreType, mcVersion)
	if err != nil {
		return nil, &StorageError{Op: "list builds", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	if !exists {
		return nil, &NotFoundError{CoreType: coreType, MCVersion: mcVersion}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT core_version FROM builds
		WHERE core_type = ? AND mc_version = ?
		GROUP BY core_version
		ORDER BY MIN(seq) ASC
	`, coreType, mcVersion)
	if err != nil {
		return nil, &StorageError{Op: "list builds", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	defer rows.Close()

	builds := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StorageError{Op: "scan build", CoreType: coreType, MCVersion: mcVersion, Err: err}
		}
		builds = append(builds, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate builds", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}

	return s.sortVersions(builds, "mc_version", mcVersion), nil
}

// GetBuild returns the most recently inserted row matching coreVersion in the
// (coreType, mcVersion) table, or a *NotFoundError.
func (s *Store) GetBuild(ctx context.Context, coreType, mcVersion, coreVersion string) (record.BuildRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, sync_time, download_url, core_type, mc_version, core_version
		FROM builds
		WHERE core_type = ? AND mc_version = ? AND core_version = ?
		ORDER BY seq DESC
		LIMIT 1
	`, coreType, mcVersion, coreVersion)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.BuildRecord{}, &NotFoundError{CoreType: coreType, MCVersion: mcVersion, CoreVersion: coreVersion}
	}
	if err != nil {
		return record.BuildRecord{}, &StorageError{Op: "get build", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	return rec.BuildRecord, nil
}

// Rows returns every row of one core table in insertion order.
// Returns an empty slice (not nil) if the table does not exist.
func (s *Store) Rows(ctx context.Context, coreType, mcVersion string) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, sync_time, download_url, core_type, mc_version, core_version
		FROM builds
		WHERE core_type = ? AND mc_version = ?
		ORDER BY seq ASC
	`, coreType, mcVersion)
	if err != nil {
		return nil, &StorageError{Op: "read rows", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	defer rows.Close()

	out := []StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan row", CoreType: coreType, MCVersion: mcVersion, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate rows", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	return out, nil
}

// TableExists reports whether the (coreType, mcVersion) core table exists.
func (s *Store) TableExists(ctx context.Context, coreType, mcVersion string) (bool, error) {
	exists, err := s.tableExists(ctx, coreType, mcVersion)
	if err != nil {
		return false, &StorageError{Op: "table exists", CoreType: coreType, MCVersion: mcVersion, Err: err}
	}
	return exists, nil
}

func (s *Store) tableExists(ctx context.Context, coreType, mcVersion string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM core_tables WHERE core_type = ? AND mc_version = ?
	`, coreType, mcVersion).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sortVersions orders vs newest first and logs when ordering degraded.
func (s *Store) sortVersions(vs []string, scopeKey, scope string) []string {
	sorted, warn := version.Sort(vs)
	if warn != nil {
		s.logger.Warn("version ordering degraded",
			scopeKey, scope,
			"tier", warn.Tier.String(),
			"offender", warn.Offender,
			"size", warn.Size)
	}
	return sorted
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (StoredRecord, error) {
	var (
		rec      StoredRecord
		syncTime string
	)
	err := r.Scan(&rec.Seq, &syncTime, &rec.DownloadURL, &rec.CoreType, &rec.MCVersion, &rec.CoreVersion)
	if err != nil {
		return StoredRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, syncTime)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("parse sync_time %q: %w", syncTime, err)
	}
	rec.SyncTime = ts.UTC()
	return rec, nil
}
