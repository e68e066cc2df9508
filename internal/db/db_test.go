package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSummary(id string) domain.BatchSummary {
	job := func(name string) domain.Job {
		return domain.Job{SourcePath: "/in/" + name, TargetFormat: format.PDF, Quality: domain.QualityHigh, OutputDir: "/out"}
	}
	results := []domain.Result{
		domain.Succeeded(job("a.md"), "direct_markdown", "/out/a.pdf", 1500*time.Millisecond),
		domain.FailedWith(job("b.odg"), "", domain.Unsupported("odg -> pdf"), 0),
		domain.FailedWith(job("c.docx"), "office_suite", domain.TimedOut("office_suite exceeded 2m0s", nil), 2*time.Minute),
	}
	for i := range results {
		results[i].Index = i
	}
	results[0].Log = "pages: 2\n"
	return domain.Summarize(id, results)
}

func TestUpsertIndex(t *testing.T) {
	s := openStore(t)

	rec, changed, err := s.UpsertIndex("/watch/a.docx", "abc")
	require.NoError(t, err)
	assert.True(t, changed, "first sighting")
	assert.NotZero(t, rec.ID)
	assert.Equal(t, IndexPending, rec.Status)

	require.NoError(t, s.SetIndexStatus("/watch/a.docx", IndexDone))

	again, changed, err := s.UpsertIndex("/watch/a.docx", "abc")
	require.NoError(t, err)
	assert.False(t, changed, "same content")
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, IndexDone, again.Status)

	edited, changed, err := s.UpsertIndex("/watch/a.docx", "def")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, IndexPending, edited.Status)

	got, err := s.GetIndex("/watch/a.docx")
	require.NoError(t, err)
	assert.Equal(t, "def", got.FileMD5)

	_, err = s.GetIndex("/watch/none")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetIndexStatus("/watch/none", IndexDone), ErrNotFound)
}

func TestSaveAndGetBatch(t *testing.T) {
	s := openStore(t)
	sum := sampleSummary("batch-1")
	require.NoError(t, s.SaveBatch("cli", sum))

	rec, err := s.GetBatch("batch-1")
	require.NoError(t, err)
	assert.Equal(t, "cli", rec.Origin)
	assert.Equal(t, 3, rec.Total)
	assert.Equal(t, 1, rec.Succeeded)
	assert.Equal(t, 1, rec.Failed)
	assert.Equal(t, 1, rec.TimedOut)
	require.Len(t, rec.Results, 3)

	back := rec.Summary()
	assert.Equal(t, sum.Results[0].Job, back.Results[0].Job)
	assert.Equal(t, "/out/a.pdf", back.Results[0].OutputPath)
	assert.Equal(t, 1500*time.Millisecond, back.Results[0].Elapsed)
	assert.Equal(t, "pages: 2\n", back.Results[0].Log)
	assert.Equal(t, domain.KindUnsupported, back.Results[1].Kind)
	assert.Equal(t, domain.StatusTimedOut, back.Results[2].Status)
	for i, r := range back.Results {
		assert.Equal(t, i, r.Index)
	}

	one, err := s.GetResult(rec.Results[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "/in/b.odg", one.SourcePath)
	assert.Equal(t, format.PDF, one.Job().TargetFormat)

	_, err = s.GetBatch("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetResult(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveBatchOverwrites(t *testing.T) {
	s := openStore(t)
	sum := sampleSummary("batch-1")

	partial := sum
	partial.Results = append([]domain.Result(nil), sum.Results...)
	partial.Results[2].Status = domain.StatusPending
	partial = domain.Summarize(partial.ID, partial.Results)
	require.NoError(t, s.SaveBatch("api", partial))
	require.NoError(t, s.SaveBatch("api", sum))

	rec, err := s.GetBatch("batch-1")
	require.NoError(t, err)
	assert.Len(t, rec.Results, 3)
	assert.Equal(t, 0, rec.Pending)
	assert.Equal(t, 1, rec.TimedOut)

	assert.Error(t, s.SaveBatch("api", domain.BatchSummary{}))
}

func TestListAndStats(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveBatch("cli", sampleSummary("first")))
	require.NoError(t, s.SaveBatch("watcher", sampleSummary("second")))
	_, _, err := s.UpsertIndex("/watch/x.md", "1")
	require.NoError(t, err)

	batches, err := s.ListBatches(10, 0)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "second", batches[0].ID)
	assert.Empty(t, batches[0].Results)

	page, err := s.ListBatches(1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "first", page[0].ID)

	failed, err := s.ListResults(string(domain.StatusFailed), 0, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, &Stats{Batches: 2, Results: 6, Succeeded: 2, Failed: 2, TimedOut: 2, IndexedFiles: 1}, st)
}
