package livelog

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/converter"
)

var _ converter.Tracker = (*Manager)(nil)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager() (*Manager, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager()
	m.now = c.now
	return m, c
}

func TestLifecycle(t *testing.T) {
	m, c := newTestManager()

	m.AppendLog("/in/ghost.md", "ignored")
	_, ok := m.GetLog("/in/ghost.md")
	assert.False(t, ok)

	m.StartTask("/in/a.docx")
	c.t = c.t.Add(time.Second)
	m.AppendLog("/in/a.docx", "converting\n")
	m.AppendLog("/in/a.docx", "done\n")

	got, ok := m.GetLog("/in/a.docx")
	require.True(t, ok)
	assert.Equal(t, "converting\ndone\n", got.Logs)
	assert.Equal(t, time.Second, got.LastUpdate.Sub(got.StartTime))

	m.EndTask("/in/a.docx")
	assert.Empty(t, m.Active())
}

func TestActiveOrderAndClean(t *testing.T) {
	m, c := newTestManager()
	m.StartTask("/in/b.pdf")
	c.t = c.t.Add(time.Minute)
	m.StartTask("/in/a.pdf")

	active := m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "/in/b.pdf", active[0].FilePath)

	c.t = c.t.Add(30 * time.Second)
	assert.Equal(t, 1, m.CleanOld(time.Minute))
	active = m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "/in/a.pdf", active[0].FilePath)
}

func TestAppendCapsOutput(t *testing.T) {
	m := NewManager()
	m.StartTask("big")
	chunk := strings.Repeat("x", 1024)
	for i := 0; i < 100; i++ {
		m.AppendLog("big", chunk)
	}
	m.AppendLog("big", "END")
	got, _ := m.GetLog("big")
	assert.Len(t, got.Logs, maxLogBytes)
	assert.True(t, strings.HasSuffix(got.Logs, "END"))
}

func TestConcurrentUse(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.StartTask("shared")
				m.AppendLog("shared", "line\n")
				_ = m.Active()
				m.EndTask("shared")
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, m.Active())
}
