// Package record defines BuildRecord, the unit of build metadata that source
// adapters produce and the store persists.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Validation error codes.
const (
	ErrCodeEmptyField    = "R001" // required field is empty
	ErrCodeBadSyncTime   = "R002" // sync_time not parseable as RFC 3339
	ErrCodeNotUTC        = "R003" // sync_time carries a non-UTC offset
	ErrCodeTableMismatch = "R004" // record addressed to a different core table
)

// BuildRecord is one known build of a distribution for a target version.
//
// (DownloadURL, CoreVersion) is the natural key within a
// (CoreType, MCVersion) table.
type BuildRecord struct {
	SyncTime    time.Time `json:"sync_time" yaml:"sync_time"`
	DownloadURL string    `json:"download_url" yaml:"download_url"`
	CoreType    string    `json:"core_type" yaml:"core_type"`
	MCVersion   string    `json:"mc_version" yaml:"mc_version"`
	CoreVersion string    `json:"core_version" yaml:"core_version"`
}

// Key is the natural key of a record inside its table.
type Key struct {
	DownloadURL string
	CoreVersion string
}

// Key returns the record's natural key.
func (r BuildRecord) Key() Key {
	return Key{DownloadURL: r.DownloadURL, CoreVersion: r.CoreVersion}
}

// ValidationError describes why a record was rejected.
type ValidationError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
	Code    string `json:"code" yaml:"code"`
	// Value is the offending raw value, if any.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("[%s] %s: %s (got %q)", e.Code, e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// New builds a normalized, validated record. syncTime must be an RFC 3339
// timestamp in UTC ("Z" or "+00:00").
func New(syncTime, downloadURL, coreType, mcVersion, coreVersion string) (BuildRecord, error) {
	ts, err := ParseSyncTime(syncTime)
	if err != nil {
		return BuildRecord{}, err
	}
	r := Normalize(BuildRecord{
		SyncTime:    ts,
		DownloadURL: downloadURL,
		CoreType:    coreType,
		MCVersion:   mcVersion,
		CoreVersion: coreVersion,
	})
	if err := r.Validate(); err != nil {
		return BuildRecord{}, err
	}
	return r, nil
}

// ParseSyncTime parses an RFC 3339 timestamp and requires a zero UTC offset.
func ParseSyncTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "sync_time",
			Message: "must be an RFC 3339 timestamp",
			Code:    ErrCodeBadSyncTime,
			Value:   s,
		}
	}
	if _, offset := ts.Zone(); offset != 0 {
		return time.Time{}, &ValidationError{
			Field:   "sync_time",
			Message: "must be in UTC",
			Code:    ErrCodeNotUTC,
			Value:   s,
		}
	}
	return ts.UTC(), nil
}

// Normalize trims surrounding whitespace and applies Unicode NFC to every
// string field so that re-fetched values produce identical natural keys.
func Normalize(r BuildRecord) BuildRecord {
	clean := func(s string) string {
		return norm.NFC.String(strings.TrimSpace(s))
	}
	r.DownloadURL = clean(r.DownloadURL)
	r.CoreType = clean(r.CoreType)
	r.MCVersion = clean(r.MCVersion)
	r.CoreVersion = clean(r.CoreVersion)
	if !r.SyncTime.IsZero() {
		r.SyncTime = r.SyncTime.UTC()
	}
	return r
}

// Validate checks that every field is present and that SyncTime is UTC.
// It returns the first problem found as a *ValidationError.
func (r BuildRecord) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"download_url", r.DownloadURL},
		{"core_type", r.CoreType},
		{"mc_version", r.MCVersion},
		{"core_version", r.CoreVersion},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{
				Field:   f.name,
				Message: "is required and must be non-empty",
				Code:    ErrCodeEmptyField,
			}
		}
	}

	if r.SyncTime.IsZero() {
		return &ValidationError{
			Field:   "sync_time",
			Message: "is required",
			Code:    ErrCodeEmptyField,
		}
	}
	if _, offset := r.SyncTime.Zone(); offset != 0 {
		return &ValidationError{
			Field:   "sync_time",
			Message: "must be in UTC",
			Code:    ErrCodeNotUTC,
			Value:   r.SyncTime.Format(time.RFC3339),
		}
	}
	return nil
}

// ValidateFor checks r and additionally that it belongs to the
// (coreType, mcVersion) table.
func (r BuildRecord) ValidateFor(coreType, mcVersion string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CoreType != coreType {
		return &ValidationError{
			Field:   "core_type",
			Message: fmt.Sprintf("does not match target table %q", coreType),
			Code:    ErrCodeTableMismatch,
			Value:   r.CoreType,
		}
	}
	if r.MCVersion != mcVersion {
		return &ValidationError{
			Field:   "mc_version",
			Message: fmt.Sprintf("does not match target table %q", mcVersion),
			Code:    ErrCodeTableMismatch,
			Value:   r.MCVersion,
		}
	}
	return nil
}

// FormatSyncTime renders t the way sync times are persisted.
func FormatSyncTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
