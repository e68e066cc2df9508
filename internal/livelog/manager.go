// Package livelog keeps the output of running conversions so it can be
// watched before the job finishes.
package livelog

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// maxLogBytes caps the output kept per task; older output is dropped.
const maxLogBytes = 64 << 10

// LiveLog is a snapshot of one running task.
type LiveLog struct {
	FilePath   string    `json:"file_path"`
	Logs       string    `json:"logs"`
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
}

// Manager tracks live logs for running tasks, keyed by source path.
type Manager struct {
	mu   sync.RWMutex
	logs map[string]*entry
	now  func() time.Time
}

type entry struct {
	start, last time.Time
	buf         strings.Builder
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{logs: make(map[string]*entry), now: time.Now}
}

// StartTask creates (or restarts) the live log for a task.
func (m *Manager) StartTask(filePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.logs[filePath] = &entry{start: now, last: now}
}

// AppendLog appends output to a running task. Unknown tasks are ignored.
func (m *Manager) AppendLog(filePath, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.logs[filePath]
	if !ok {
		return
	}
	e.buf.WriteString(content)
	if e.buf.Len() > maxLogBytes {
		tail := e.buf.String()
		tail = tail[len(tail)-maxLogBytes:]
		e.buf.Reset()
		e.buf.WriteString(tail)
	}
	e.last = m.now()
}

// EndTask removes a task's live log.
func (m *Manager) EndTask(filePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, filePath)
}

// GetLog returns a copy of the live log for filePath.
func (m *Manager) GetLog(filePath string) (LiveLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.logs[filePath]
	if !ok {
		return LiveLog{}, false
	}
	return e.snapshot(filePath), true
}

// Active returns copies of every running task, oldest first.
func (m *Manager) Active() []LiveLog {
	m.mu.RLock()
	out := make([]LiveLog, 0, len(m.logs))
	for path, e := range m.logs {
		out = append(out, e.snapshot(path))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// CleanOld drops tasks not updated within maxAge and returns how many went.
func (m *Manager) CleanOld(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for path, e := range m.logs {
		if now.Sub(e.last) > maxAge {
			delete(m.logs, path)
			n++
		}
	}
	return n
}

func (e *entry) snapshot(path string) LiveLog {
	return LiveLog{FilePath: path, Logs: e.buf.String(), StartTime: e.start, LastUpdate: e.last}
}
