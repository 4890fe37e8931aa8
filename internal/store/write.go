package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/UCKETX/mcsm-templates/internal/record"
)

// DefaultRetentionCap is the number of most recently inserted builds kept per
// core table by Retention.
const DefaultRetentionCap = 35

// MergeResult summarizes one Upsert.
type MergeResult struct {
	CoreType  string `json:"core_type" yaml:"core_type"`
	MCVersion string `json:"mc_version" yaml:"mc_version"`
	// Updated counts incoming records whose natural key already existed.
	Updated int `json:"updated" yaml:"updated"`
	// Inserted counts new rows.
	Inserted int `json:"inserted" yaml:"inserted"`
	// Deduplicated counts fully identical rows removed by the safety-net pass.
	Deduplicated int `json:"deduplicated" yaml:"deduplicated"`
	// Total is the row count of the table after the merge.
	Total int `json:"total" yaml:"total"`
	// Dropped is true when the table ended empty and was removed.
	Dropped bool `json:"dropped" yaml:"dropped"`
	// Rejected holds records that failed validation. They were skipped.
	Rejected []*record.ValidationError `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// Upsert merges records into the (coreType, mcVersion) core table.
//
// The table is created if missing. A record whose (download_url,
// core_version) already exists only refreshes sync_time; otherwise it is
// inserted. Fully identical rows are then collapsed to the earliest one, and
// a table left with no rows is dropped. Invalid records are rejected one by
// one without affecting the rest of the batch.
//
// Everything happens in one transaction: on error or cancellation nothing is
// committed and a *StorageError is returned.
func (s *Store) Upsert(ctx context.Context, coreType, mcVersion string, records []record.BuildRecord) (MergeResult, error) {
	res := MergeResult{CoreType: coreType, MCVersion: mcVersion}
	fail := func(op string, err error) (MergeResult, error) {
		return MergeResult{CoreType: coreType, MCVersion: mcVersion},
			&StorageError{Op: op, CoreType: coreType, MCVersion: mcVersion, Err: err}
	}

	if coreType == "" || mcVersion == "" {
		return res, &record.ValidationError{
			Field:   "table",
			Message: "core_type and mc_version are required",
			Code:    record.ErrCodeEmptyField,
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO core_tables (core_type, mc_version, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(core_type, mc_version) DO NOTHING
	`, coreType, mcVersion, record.FormatSyncTime(time.Now()))
	if err != nil {
		return fail("create table", err)
	}

	for _, r := range records {
		r = record.Normalize(r)
		if err := r.ValidateFor(coreType, mcVersion); err != nil {
			ve, _ := err.(*record.ValidationError)
			res.Rejected = append(res.Rejected, ve)
			s.logger.Warn("rejected build record",
				"core_type", coreType,
				"mc_version", mcVersion,
				"core_version", r.CoreVersion,
				"error", err)
			continue
		}

		updated, err := refreshSyncTime(ctx, tx, r)
		if err != nil {
			return fail("refresh sync_time", err)
		}
		if updated {
			res.Updated++
			continue
		}

		if err := insertBuild(ctx, tx, r); err != nil {
			return fail("insert build", err)
		}
		res.Inserted++
	}

	deduped, err := dedupTable(ctx, tx, coreType, mcVersion)
	if err != nil {
		return fail("dedup", err)
	}
	res.Deduplicated = deduped

	total, dropped, err := dropIfEmpty(ctx, tx, coreType, mcVersion)
	if err != nil {
		return fail("drop empty table", err)
	}
	res.Total = total
	res.Dropped = dropped

	if s.beforeCommit != nil {
		if err := s.beforeCommit(ctx, coreType, mcVersion); err != nil {
			return fail("merge hook", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	s.logger.Debug("merged core table",
		"core_type", coreType,
		"mc_version", mcVersion,
		"updated", res.Updated,
		"inserted", res.Inserted,
		"deduplicated", res.Deduplicated,
		"total", res.Total,
		"dropped", res.Dropped)

	return res, nil
}

// refreshSyncTime updates sync_time for an existing natural key. Only
// sync_time is ever rewritten.
func refreshSyncTime(ctx context.Context, tx *sql.Tx, r record.BuildRecord) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE builds SET sync_time = ?
		WHERE core_type = ? AND mc_version = ? AND download_url = ? AND core_version = ?
	`, record.FormatSyncTime(r.SyncTime), r.CoreType, r.MCVersion, r.DownloadURL, r.CoreVersion)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func insertBuild(ctx context.Context, tx *sql.Tx, r record.BuildRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO builds (sync_time, download_url, core_type, mc_version, core_version)
		VALUES (?, ?, ?, ?, ?)
	`, record.FormatSyncTime(r.SyncTime), r.DownloadURL, r.CoreType, r.MCVersion, r.CoreVersion)
	return err
}

// dedupTable deletes rows identical across all five fields, keeping the
// earliest inserted copy.
func dedupTable(ctx context.Context, tx *sql.Tx, coreType, mcVersion string) (int, error) {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM builds
		WHERE core_type = ? AND mc_version = ?
		  AND seq NOT IN (
			SELECT MIN(seq) FROM builds
			WHERE core_type = ? AND mc_version = ?
			GROUP BY sync_time, download_url, core_type, mc_version, core_version
		  )
	`, coreType, mcVersion, coreType, mcVersion)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// dropIfEmpty removes the table's registry entry when it holds no rows.
func dropIfEmpty(ctx context.Context, tx *sql.Tx, coreType, mcVersion string) (total int, dropped bool, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM builds WHERE core_type = ? AND mc_version = ?
	`, coreType, mcVersion).Scan(&total)
	if err != nil {
		return 0, false, err
	}
	if total > 0 {
		return total, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM core_tables WHERE core_type = ? AND mc_version = ?
	`, coreType, mcVersion)
	if err != nil {
		return 0, false, err
	}
	return 0, true, nil
}

// RetentionResult summarizes one Retention pass over a core type.
type RetentionResult struct {
	CoreType string `json:"core_type" yaml:"core_type"`
	Cap      int    `json:"cap" yaml:"cap"`
	Tables   int    `json:"tables" yaml:"tables"`
	Removed  int    `json:"removed" yaml:"removed"`
	// DroppedVersions lists tables that ended empty and were removed.
	DroppedVersions []string `json:"dropped_versions,omitempty" yaml:"dropped_versions,omitempty"`
}

// Retention trims every core table of coreType to the keep most recently
// inserted rows and drops tables left empty. It runs in one transaction.
func (s *Store) Retention(ctx context.Context, coreType string, keep int) (RetentionResult, error) {
	res := RetentionResult{CoreType: coreType, Cap: keep}
	if keep < 0 {
		return res, fmt.Errorf("retention cap must be >= 0, got %d", keep)
	}
	fail := func(op string, err error) (RetentionResult, error) {
		return RetentionResult{CoreType: coreType, Cap: keep},
			&StorageError{Op: op, CoreType: coreType, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin tx", err)
	}
	defer tx.Rollback()

	versions, err := tableVersions(ctx, tx, coreType)
	if err != nil {
		return fail("list tables", err)
	}
	res.Tables = len(versions)

	for _, mc := range versions {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM builds
			WHERE core_type = ? AND mc_version = ?
			  AND seq NOT IN (
				SELECT seq FROM builds
				WHERE core_type = ? AND mc_version = ?
				ORDER BY seq DESC
				LIMIT ?
			  )
		`, coreType, mc, coreType, mc, keep)
		if err != nil {
			return fail("trim table", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fail("trim table", err)
		}
		res.Removed += int(n)

		_, dropped, err := dropIfEmpty(ctx, tx, coreType, mc)
		if err != nil {
			return fail("drop empty table", err)
		}
		if dropped {
			res.DroppedVersions = append(res.DroppedVersions, mc)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	s.logger.Debug("retention applied",
		"core_type", coreType,
		"cap", keep,
		"tables", res.Tables,
		"removed", res.Removed,
		"dropped", len(res.DroppedVersions))

	return res, nil
}

// tableVersions lists the mc_versions with an existing core table.
func tableVersions(ctx context.Context, q queryer, coreType string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT mc_version FROM core_tables
		WHERE core_type = ?
		ORDER BY created_at ASC, mc_version COLLATE BINARY ASC
	`, coreType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
