package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(runID string, createdAt int64) RunRecord {
	code := 0
	return RunRecord{
		RunID:          runID,
		ScenarioID:     "ls_help",
		ScenarioSHA256: strings.Repeat("a", 64),
		BinarySHA256:   strings.Repeat("b", 64),
		FixtureID:      "fs/empty_dir",
		Outcome:        "exited",
		ExitCode:       &code,
		CreatedAtMS:    createdAt,
		BundleDir:      "/tmp/evidence/" + runID,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("ls_help-abc123def456-1700000000000", 1700000000000)
	require.NoError(t, s.RecordRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRunRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("dup-000000000000-1", 1)
	require.NoError(t, s.RecordRun(ctx, rec))
	assert.Error(t, s.RecordRun(ctx, rec))
}

func TestRecordRunWithoutExitCode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("sig-000000000000-1", 1)
	rec.Outcome = "signaled"
	rec.ExitCode = nil
	require.NoError(t, s.RecordRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Nil(t, got.ExitCode)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a-x-1", "b-x-2", "c-x-3"} {
		require.NoError(t, s.RecordRun(ctx, sampleRecord(id, int64(i+1))))
	}

	runs, err := s.ListRuns(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c-x-3", runs[0].RunID)
	assert.Equal(t, "a-x-1", runs[2].RunID)
}

func TestListRunsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleRecord("one-x-1", 1)
	second := sampleRecord("two-x-2", 2)
	second.ScenarioID = "cat_version"
	second.Outcome = "signaled"
	second.ExitCode = nil
	require.NoError(t, s.RecordRun(ctx, first))
	require.NoError(t, s.RecordRun(ctx, second))

	byScenario, err := s.ListRuns(ctx, ListOptions{ScenarioID: "cat_version"})
	require.NoError(t, err)
	require.Len(t, byScenario, 1)
	assert.Equal(t, "two-x-2", byScenario[0].RunID)

	byOutcome, err := s.ListRuns(ctx, ListOptions{Outcome: "exited"})
	require.NoError(t, err)
	require.Len(t, byOutcome, 1)
	assert.Equal(t, "one-x-1", byOutcome[0].RunID)

	limited, err := s.ListRuns(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "two-x-2", limited[0].RunID)
}

func TestListRunsBreaksTimestampTiesByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, sampleRecord("zz-x-1", 5)))
	require.NoError(t, s.RecordRun(ctx, sampleRecord("aa-x-1", 5)))

	runs, err := s.ListRuns(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "aa-x-1", runs[0].RunID)
}

func TestPragmas(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}
