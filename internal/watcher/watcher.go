// Package watcher converts files as they appear in watched directories.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/db"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/utils"
)

// Submitter accepts jobs; worker.Queue satisfies it.
type Submitter interface {
	Enqueue(job domain.Job) bool
}

// Index remembers content hashes so unchanged files are not converted
// twice; db.Store satisfies it.
type Index interface {
	UpsertIndex(path, md5 string) (db.FileIndex, bool, error)
}

type Options struct {
	Rules     []config.Rule
	Presets   config.Presets
	Submitter Submitter
	// Index defaults to an in-memory one.
	Index          Index
	StabilityDelay time.Duration
	MD5ChunkSize   int64
	Logger         zerolog.Logger
}

type rule struct {
	config.Rule
	dir    string
	outDir string
}

type Watcher struct {
	opts  Options
	rules []rule
	w     *fsnotify.Watcher
	log   zerolog.Logger

	mu     sync.Mutex
	paused bool
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// New creates missing watch directories and the fsnotify watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Submitter == nil {
		return nil, errors.New("watcher: submitter is required")
	}
	if opts.Index == nil {
		opts.Index = newMemIndex()
	}
	if opts.StabilityDelay <= 0 {
		opts.StabilityDelay = time.Second
	}
	rules := make([]rule, 0, len(opts.Rules))
	for _, r := range opts.Rules {
		dir, err := filepath.Abs(r.WatchDir)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		out := r.OutputDir
		if out == "" {
			out = filepath.Join(dir, "converted")
		}
		if out, err = filepath.Abs(out); err != nil {
			return nil, err
		}
		rules = append(rules, rule{Rule: r, dir: dir, outDir: out})
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		opts:   opts,
		rules:  rules,
		w:      fw,
		log:    opts.Logger.With().Str("component", "watcher").Logger(),
		timers: make(map[string]*time.Timer),
	}, nil
}

// Start registers the watch directories and handles events until ctx is
// done. Conversions already scheduled are waited for.
func (wr *Watcher) Start(ctx context.Context) error {
	if err := wr.registerAll(); err != nil {
		return err
	}
	defer wr.wg.Wait()
	defer wr.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return nil
			}
			wr.handleEvent(ctx, ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return nil
			}
			wr.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (wr *Watcher) Close() error { return wr.w.Close() }

func (wr *Watcher) Pause()       { wr.mu.Lock(); wr.paused = true; wr.mu.Unlock() }
func (wr *Watcher) Resume()      { wr.mu.Lock(); wr.paused = false; wr.mu.Unlock() }
func (wr *Watcher) Paused() bool { wr.mu.Lock(); defer wr.mu.Unlock(); return wr.paused }

func (wr *Watcher) registerAll() error {
	for _, r := range wr.rules {
		if err := wr.addTree(r, r.dir); err != nil {
			return err
		}
		wr.log.Info().Str("rule", r.Name).Str("dir", r.dir).Bool("recursive", r.Recursive).Msg("watching")
	}
	return nil
}

func (wr *Watcher) addTree(r rule, root string) error {
	if !r.Recursive {
		return wr.w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if r.inOutput(path) {
			return filepath.SkipDir
		}
		if err := wr.w.Add(path); err != nil {
			wr.log.Warn().Err(err).Str("dir", path).Msg("cannot watch directory")
		}
		return nil
	})
}

func (wr *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if ev.Has(fsnotify.Create) {
			wr.newDir(ctx, ev.Name)
		}
		return
	}
	if wr.Paused() {
		return
	}
	if r, ok := wr.ruleFor(ev.Name); ok {
		wr.schedule(ctx, r, ev.Name)
	}
}

// newDir watches a directory created under a recursive rule and picks up
// files that landed in it before the watch was added.
func (wr *Watcher) newDir(ctx context.Context, dir string) {
	for _, r := range wr.rules {
		if !r.Recursive || !within(r.dir, dir) || r.inOutput(dir) {
			continue
		}
		if err := wr.addTree(r, dir); err != nil {
			wr.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch new directory")
		}
		if wr.Paused() {
			return
		}
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() && wr.accepts(r, path) {
				wr.schedule(ctx, r, path)
			}
			return nil
		})
		return
	}
}

func (wr *Watcher) ruleFor(path string) (rule, bool) {
	for _, r := range wr.rules {
		if wr.accepts(r, path) {
			return r, true
		}
	}
	return rule{}, false
}

func (wr *Watcher) accepts(r rule, path string) bool {
	if !within(r.dir, path) || r.inOutput(path) {
		return false
	}
	if !r.Recursive && filepath.Dir(path) != r.dir {
		return false
	}
	name := filepath.Base(path)
	// editor swap files and office lock files
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	return r.Matches(path)
}

// schedule (re)starts the debounce timer for path.
func (wr *Watcher) schedule(ctx context.Context, r rule, path string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if t, ok := wr.timers[path]; ok && t.Stop() {
		t.Reset(r.Debounce)
		return
	}
	wr.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(r.Debounce, func() {
		defer wr.wg.Done()
		wr.mu.Lock()
		if wr.timers[path] == t {
			delete(wr.timers, path)
		}
		wr.mu.Unlock()
		if _, err := wr.process(ctx, r, path); err != nil && ctx.Err() == nil {
			wr.log.Error().Err(err).Str("file", path).Msg("index/enqueue error")
		}
	})
	wr.timers[path] = t
}

func (wr *Watcher) stopTimers() {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	for path, t := range wr.timers {
		if t.Stop() {
			wr.wg.Done()
		}
		delete(wr.timers, path)
	}
}

// process waits for path to settle, then submits it when its content is new.
func (wr *Watcher) process(ctx context.Context, r rule, path string) (bool, error) {
	if err := utils.WaitFileStable(ctx, path, wr.opts.StabilityDelay); err != nil {
		return false, err
	}
	sum, err := utils.MD5File(path, wr.opts.MD5ChunkSize)
	if err != nil {
		return false, err
	}
	_, changed, err := wr.opts.Index.UpsertIndex(path, sum)
	if err != nil {
		return false, err
	}
	if !changed {
		wr.log.Debug().Str("file", path).Msg("unchanged, skipped")
		return false, nil
	}
	job, err := r.Job(path, wr.opts.Presets)
	if err != nil {
		return false, err
	}
	if !wr.opts.Submitter.Enqueue(job) {
		wr.log.Warn().Str("file", path).Str("rule", r.Name).Msg("queue rejected job")
		// forget the hash so the next event for path retries
		_, _, _ = wr.opts.Index.UpsertIndex(path, "")
		return false, nil
	}
	wr.markQueued(path)
	wr.log.Info().Str("file", path).Str("rule", r.Name).Str("target", string(job.TargetFormat)).Msg("queued")
	return true, nil
}

func (wr *Watcher) markQueued(path string) {
	type statusSetter interface {
		SetIndexStatus(path, status string) error
	}
	if s, ok := wr.opts.Index.(statusSetter); ok {
		if err := s.SetIndexStatus(path, db.IndexQueued); err != nil {
			wr.log.Warn().Err(err).Str("file", path).Msg("cannot update index status")
		}
	}
}

// ScanAll submits every matching file already present in the watched
// directories and returns how many were queued. Files whose content was
// indexed before are skipped.
func (wr *Watcher) ScanAll(ctx context.Context) (int, error) {
	queued := 0
	for _, r := range wr.rules {
		err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != r.dir && (!r.Recursive || r.inOutput(path)) {
					return filepath.SkipDir
				}
				return nil
			}
			if !wr.accepts(r, path) {
				return nil
			}
			ok, err := wr.process(ctx, r, path)
			if err != nil {
				wr.log.Error().Err(err).Str("file", path).Msg("scan index error")
			}
			if ok {
				queued++
			}
			return nil
		})
		if err != nil {
			return queued, err
		}
	}
	return queued, nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

type memIndex struct {
	mu   sync.Mutex
	seen map[string]string
}

func newMemIndex() *memIndex { return &memIndex{seen: make(map[string]string)} }

func (m *memIndex) UpsertIndex(path, md5 string) (db.FileIndex, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.seen[path] != md5
	m.seen[path] = md5
	return db.FileIndex{FilePath: path, FileMD5: md5, Status: db.IndexPending}, changed, nil
}

// inOutput reports whether path lies in the rule's output directory, which
// is never watched unless it is the watch directory itself.
func (r rule) inOutput(path string) bool {
	return r.outDir != r.dir && within(r.outDir, path)
}
