package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UCKETX/mcsm-templates/internal/record"
)

func TestListVersions_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, mc := range []string{"1.19.2", "1.21.4", "1.20.6", "1.7.10"} {
		_, err := s.Upsert(ctx, "Forge", mc, createTestRecords("Forge", mc, 1))
		require.NoError(t, err)
	}
	// Another core type in the same unit must not leak in.
	_, err := s.Upsert(ctx, "Vanilla", "1.99", createTestRecords("Vanilla", "1.99", 1))
	require.NoError(t, err)

	got, err := s.ListVersions(ctx, "Forge")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.21.4", "1.20.6", "1.19.2", "1.7.10"}, got)
}

func TestListVersions_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ListVersions(context.Background(), "Forge")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListVersions_DroppedTableDisappears(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, "Forge", "1.12.2", createTestRecords("Forge", "1.12.2", 2))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "Forge", "1.20.1", createTestRecords("Forge", "1.20.1", 2))
	require.NoError(t, err)

	_, err = s.db.Exec(`DELETE FROM builds WHERE mc_version = '1.12.2'`)
	require.NoError(t, err)
	res, err := s.Upsert(ctx, "Forge", "1.12.2", nil)
	require.NoError(t, err)
	require.True(t, res.Dropped)

	got, err := s.ListVersions(ctx, "Forge")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.20.1"}, got)
}

func TestListBuilds_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recs := []record.BuildRecord{
		createTestRecord("Arclight", "1.20.1", "build9"),
		createTestRecord("Arclight", "1.20.1", "build100"),
		createTestRecord("Arclight", "1.20.1", "build17"),
	}
	// Same core version behind a second URL is listed once.
	dup := createTestRecord("Arclight", "1.20.1", "build17")
	dup.DownloadURL = "https://mirror.example.com/build17.jar"
	recs = append(recs, dup)

	_, err := s.Upsert(ctx, "Arclight", "1.20.1", recs)
	require.NoError(t, err)

	got, err := s.ListBuilds(ctx, "Arclight", "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"build100", "build17", "build9"}, got)
}

func TestListBuilds_MissingTable(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ListBuilds(context.Background(), "Forge", "1.20.1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "1.20.1", nf.MCVersion)
}

func TestGetBuild(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestRecord("Forge", "1.20.1", "47.2.0")
	want.SyncTime = time.Date(2024, 2, 3, 4, 5, 6, 700, time.UTC)
	_, err := s.Upsert(ctx, "Forge", "1.20.1", []record.BuildRecord{want})
	require.NoError(t, err)

	got, err := s.GetBuild(ctx, "Forge", "1.20.1", "47.2.0")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetBuild_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, "Forge", "1.20.1", createTestRecords("Forge", "1.20.1", 1))
	require.NoError(t, err)

	_, err = s.GetBuild(ctx, "Forge", "1.20.1", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Forge/1.20.1/nope")
}

func TestRows_MissingTableIsEmpty(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.Rows(context.Background(), "Forge", "1.20.1")
	require.NoError(t, err)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
}
