package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/db"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
	"github.com/ah-its-andy/docconv/internal/logging"
)

type recorder struct {
	mu     sync.Mutex
	jobs   []domain.Job
	reject bool
}

func (r *recorder) Enqueue(job domain.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return false
	}
	r.jobs = append(r.jobs, job)
	return true
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.SourcePath
	}
	sort.Strings(out)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func testRule(dir string) config.Rule {
	return config.Rule{
		Name:         "docs",
		WatchDir:     dir,
		Extensions:   []string{".md", ".docx"},
		TargetFormat: "pdf",
		Quality:      "low",
		Debounce:     20 * time.Millisecond,
	}
}

func newWatcher(t *testing.T, sub Submitter, index Index, rules ...config.Rule) *Watcher {
	t.Helper()
	w, err := New(Options{
		Rules:          rules,
		Presets:        config.Presets(config.DefaultPresets),
		Submitter:      sub,
		Index:          index,
		StabilityDelay: 5 * time.Millisecond,
		MD5ChunkSize:   1024,
		Logger:         logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

// start runs the watcher and gives fsnotify a moment to register.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(50 * time.Millisecond)
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestNewCreatesWatchDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox", "nested")
	newWatcher(t, &recorder{}, nil, testRule(dir))
	assert.DirExists(t, dir)

	_, err := New(Options{Rules: []config.Rule{testRule(dir)}})
	assert.Error(t, err, "submitter is required")
}

func TestWatchQueuesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := newWatcher(t, rec, nil, testRule(dir))
	start(t, w)

	write(t, filepath.Join(dir, "notes.md"), "# hi")
	write(t, filepath.Join(dir, "photo.png"), "not matched")
	write(t, filepath.Join(dir, ".notes.md.swp"), "swap")
	write(t, filepath.Join(dir, "~$memo.docx"), "lock")

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	job := rec.jobs[0]
	assert.Equal(t, filepath.Join(dir, "notes.md"), job.SourcePath)
	assert.Equal(t, format.PDF, job.TargetFormat)
	assert.Equal(t, domain.QualityLow, job.Quality)
	assert.Equal(t, filepath.Join(dir, "converted"), job.OutputDir)

	// rewriting identical content does not queue again
	write(t, filepath.Join(dir, "notes.md"), "# hi")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	write(t, filepath.Join(dir, "notes.md"), "# changed")
	require.Eventually(t, func() bool { return rec.count() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatchDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	r := testRule(dir)
	r.Debounce = 150 * time.Millisecond
	w := newWatcher(t, rec, nil, r)
	start(t, w)

	path := filepath.Join(dir, "draft.md")
	for i := 0; i < 5; i++ {
		write(t, path, "v"+string(rune('0'+i)))
		time.Sleep(20 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestPauseResume(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := newWatcher(t, rec, nil, testRule(dir))
	start(t, w)

	w.Pause()
	assert.True(t, w.Paused())
	write(t, filepath.Join(dir, "a.md"), "a")
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, rec.count())

	w.Resume()
	write(t, filepath.Join(dir, "b.md"), "b")
	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{filepath.Join(dir, "b.md")}, rec.paths())
}

func TestRecursiveRuleFollowsNewDirs(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	r := testRule(dir)
	r.Recursive = true
	w := newWatcher(t, rec, nil, r)
	start(t, w)

	sub := filepath.Join(dir, "2025", "march")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	write(t, filepath.Join(sub, "report.docx"), "docx bytes")
	// outputs never feed back in
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "converted"), 0o755))
	write(t, filepath.Join(dir, "converted", "old.md"), "out")

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{filepath.Join(sub, "report.docx")}, rec.paths())
}

func TestScanAllUsesIndex(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.md"), "a")
	write(t, filepath.Join(dir, "b.docx"), "b")
	write(t, filepath.Join(dir, "c.txt"), "c")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	write(t, filepath.Join(dir, "sub", "d.md"), "d")

	store, err := db.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec := &recorder{}
	w := newWatcher(t, rec, store, testRule(dir))
	n, err := w.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "non-recursive rule skips sub/")
	assert.Equal(t, []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.docx")}, rec.paths())

	idx, err := store.GetIndex(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, db.IndexQueued, idx.Status)

	n, err = w.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "already indexed")
}

func TestRejectedJobIsRetried(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.md"), "a")
	rec := &recorder{reject: true}
	w := newWatcher(t, rec, nil, testRule(dir))

	n, err := w.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	rec.reject = false
	n, err = w.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPresetRule(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "scan.pdf"), "%PDF-1.4")
	rec := &recorder{}
	r := config.Rule{Name: "scans", WatchDir: dir, Extensions: []string{".pdf"}, Preset: "scan", OutputDir: filepath.Join(dir, "out")}
	w := newWatcher(t, rec, nil, r)

	_, err := w.ScanAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rec.count())
	job := rec.jobs[0]
	assert.Equal(t, format.DOCX, job.TargetFormat)
	assert.True(t, job.OCR)
	assert.True(t, job.PreserveLayout)
	assert.Equal(t, filepath.Join(dir, "out"), job.OutputDir)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a/b"))
	assert.True(t, within("/a/b", "/a/b/c/d.md"))
	assert.False(t, within("/a/b", "/a/bc/d.md"))
	assert.False(t, within("/a/b", "/a"))
	assert.True(t, within("/a/b", "/a/b/..foo"))
}
