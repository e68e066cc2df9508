package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/domain"
)

// WorkerIDEnv carries the worker id into a child process.
const WorkerIDEnv = "DOCCONV_WORKER_ID"

const (
	defaultGrace = 10 * time.Second
	maxLine      = 4 << 20
	exitWait     = 5 * time.Second
)

// One JSON object per line in each direction.
type request struct {
	ID  uint64     `json:"id"`
	Job domain.Job `json:"job"`
}

type response struct {
	ID     uint64        `json:"id"`
	Result domain.Result `json:"result"`
}

// ServeChild is the child side of ProcessRunner: it reads jobs from in, runs
// them on r and writes one result line per job to out until in is closed.
func ServeChild(ctx context.Context, in io.Reader, out io.Writer, r Runner) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	enc := json.NewEncoder(out)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		res := r.Run(ctx, req.Job)
		if err := enc.Encode(response{ID: req.ID, Result: res}); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ProcessOptions configures a ProcessRunner.
type ProcessOptions struct {
	Worker int
	// Command defaults to the running executable.
	Command string
	// Args default to "worker".
	Args []string
	// Env is appended to the parent's environment.
	Env      []string
	Timeouts converter.Timeouts
	// Grace is added to the tier timeout before the child is considered hung.
	Grace  time.Duration
	Stderr io.Writer
	Logger zerolog.Logger
}

// ProcessRunner runs jobs in a persistent child process so a crash in a
// converter takes down only that child. A dead or hung child is replaced on
// the next job.
type ProcessRunner struct {
	opts  ProcessOptions
	log   zerolog.Logger
	seq   uint64
	child *child
}

type child struct {
	cmd     *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc
	stdin   io.WriteCloser
	enc     *json.Encoder
	replies chan response
	exited  chan struct{}
	err     error
}

func NewProcessRunner(opts ProcessOptions) *ProcessRunner {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if len(opts.Args) == 0 {
		opts.Args = []string{"worker"}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &ProcessRunner{
		opts: opts,
		log:  opts.Logger.With().Str("component", "process-runner").Int("worker", opts.Worker).Logger(),
	}
}

// ProcessFactory gives each worker its own child process.
func ProcessFactory(base ProcessOptions) RunnerFactory {
	return func(id int) (Runner, error) {
		opts := base
		opts.Worker = id
		if opts.Command == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locate executable: %w", err)
			}
			opts.Command = exe
		}
		return NewProcessRunner(opts), nil
	}
}

func (r *ProcessRunner) start() (*child, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, r.opts.Command, r.opts.Args...)
	cmd.Env = append(os.Environ(), r.opts.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", WorkerIDEnv, r.opts.Worker))
	cmd.Stderr = r.opts.Stderr
	converter.Isolate(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start worker process: %w", err)
	}
	c := &child{
		cmd:     cmd,
		ctx:     ctx,
		cancel:  cancel,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		replies: make(chan response, 1),
		exited:  make(chan struct{}),
	}
	go c.read(stdout)
	r.log.Debug().Int("pid", cmd.Process.Pid).Msg("worker process started")
	return c, nil
}

func (c *child) read(stdout io.Reader) {
	defer close(c.exited)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			continue
		}
		select {
		case c.replies <- resp:
		case <-c.ctx.Done():
		}
	}
	c.err = c.cmd.Wait()
}

// kill takes the child's process group down and waits briefly for it.
func (c *child) kill() {
	c.cancel()
	select {
	case <-c.exited:
	case <-time.After(exitWait):
	}
}

func (r *ProcessRunner) reset() {
	if r.child != nil {
		r.child.kill()
		r.child = nil
	}
}

func (r *ProcessRunner) Run(ctx context.Context, job domain.Job) domain.Result {
	start := time.Now()
	if job.Quality == "" {
		job.Quality = domain.QualityBalanced
	}
	fail := func(err error) domain.Result {
		return domain.FailedWith(job, "", err, time.Since(start))
	}
	if r.child == nil {
		c, err := r.start()
		if err != nil {
			return fail(domain.Unavailable("worker process", err))
		}
		r.child = c
	}
	c := r.child
	r.seq++
	id := r.seq
	if err := c.enc.Encode(request{ID: id, Job: job}); err != nil {
		r.reset()
		return fail(domain.Failed("send job to worker process", err))
	}

	guard := r.opts.Timeouts.For(job.Quality) + r.opts.Grace
	timer := time.NewTimer(guard)
	defer timer.Stop()
	for {
		select {
		case resp := <-c.replies:
			if resp.ID != id {
				continue
			}
			res := resp.Result
			res.Job = job
			return res
		case <-c.exited:
			select {
			case resp := <-c.replies:
				if resp.ID == id {
					res := resp.Result
					res.Job = job
					r.child = nil
					return res
				}
			default:
			}
			r.child = nil
			r.log.Warn().Err(c.err).Str("file", job.SourcePath).Msg("worker process died")
			err := c.err
			if err == nil {
				err = errors.New("exited without a result")
			}
			return fail(domain.Failed("worker process crashed", err))
		case <-timer.C:
			r.log.Warn().Str("file", job.SourcePath).Dur("guard", guard).Msg("worker process hung, restarting")
			r.reset()
			return fail(domain.TimedOut(fmt.Sprintf("worker process exceeded %s", guard), nil))
		case <-ctx.Done():
			r.reset()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fail(domain.TimedOut("batch deadline", ctx.Err()))
			}
			return fail(domain.Failed("cancelled", ctx.Err()))
		}
	}
}

// Close asks the child to exit by closing its input and kills it if it does
// not.
func (r *ProcessRunner) Close() error {
	c := r.child
	if c == nil {
		return nil
	}
	r.child = nil
	c.stdin.Close()
	select {
	case <-c.exited:
	case <-time.After(r.opts.Grace):
		c.kill()
	}
	c.cancel()
	select {
	case <-c.exited:
	default:
		return nil
	}
	var exitErr *exec.ExitError
	if c.err != nil && !errors.As(c.err, &exitErr) {
		return c.err
	}
	return nil
}
