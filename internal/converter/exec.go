package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/ah-its-andy/docconv/internal/domain"
)

// waitDelay bounds how long Wait lingers on pipes after the process group
// was killed.
const waitDelay = 2 * time.Second

// Executor abstracts command execution for testing.
type Executor interface {
	LookPath(file string) (string, error)
	// Run runs name with args in dir and returns combined output.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec. A cancelled
// context kills the whole process group so helpers spawned by the tool
// (soffice.bin, pdf engines) go down with it.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	Isolate(cmd)
	err := cmd.Run()
	return out.Bytes(), err
}

// Isolate puts cmd in its own process group and makes cancellation of its
// context kill the whole group. cmd must come from exec.CommandContext.
func Isolate(cmd *exec.Cmd) {
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
}

// DefaultExecutor is the os/exec backed executor.
var DefaultExecutor Executor = osExecutor{}

// runTool runs a resolved tool and classifies the failure. Output is copied
// to logw either way.
func runTool(ctx context.Context, ex Executor, logw io.Writer, dir, name string, args ...string) error {
	if logw != nil {
		fmt.Fprintf(logw, "$ %s %s\n", name, strings.Join(args, " "))
	}
	out, err := ex.Run(ctx, dir, name, args...)
	if logw != nil && len(out) > 0 {
		logw.Write(out)
		if out[len(out)-1] != '\n' {
			io.WriteString(logw, "\n")
		}
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.TimedOut(name, ctxErr)
		}
		return domain.Failed(name+" cancelled", ctxErr)
	}
	return domain.Failed(fmt.Sprintf("%s: %s", name, tail(out, 512)), err)
}

// tail returns at most n trailing bytes of b, trimmed.
func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
