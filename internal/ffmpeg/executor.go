package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/eleven-am/montage/internal/errs"
)

const (
	stderrTail = 20
	waitDelay  = 5 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
	StateError
	StateKilled
)

// Progress is one parsed -progress block.
type Progress struct {
	Frame   int
	FPS     float64
	OutTime float64
	Speed   string
	Percent float64
	Done    bool
}

type RunOptions struct {
	Args []string
	// Duration is the expected output length, used to turn out_time into a
	// percentage.
	Duration   float64
	OnProgress func(Progress)
	Stdin      io.Reader
	Stdout     io.Writer
}

// Executor runs ffmpeg processes with the configured binary and global flags.
type Executor struct {
	logger   zerolog.Logger
	binary   string
	threads  int
	logLevel string
}

// New creates an executor. A zero thread count uses the number of logical
// CPUs.
func New(logger zerolog.Logger, binary string, threads int, logLevel string) *Executor {
	if binary == "" {
		binary = "ffmpeg"
	}
	if threads <= 0 {
		threads = DefaultThreads()
	}
	return &Executor{
		logger:   logger.With().Str("component", "ffmpeg").Logger(),
		binary:   binary,
		threads:  threads,
		logLevel: logLevel,
	}
}

func (e *Executor) Binary() string { return e.binary }

// DefaultThreads reports the logical CPU count.
func DefaultThreads() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Run starts ffmpeg and waits for it to exit.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	p, err := e.Start(ctx, opts)
	if err != nil {
		return err
	}
	return p.Wait()
}

// Process is one running ffmpeg invocation.
type Process struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	state  State
	err    error
	tail   []string
	killed bool
}

// Start launches ffmpeg without waiting for it.
func (e *Executor) Start(ctx context.Context, opts RunOptions) (*Process, error) {
	if len(opts.Args) == 0 {
		return nil, errs.Engine("ffmpeg", fmt.Errorf("no arguments provided"))
	}

	args := append(GlobalArgs(e.logLevel, e.threads), opts.Args...)

	e.logger.Debug().
		Str("cmd", e.binary).
		Strs("args", args).
		Msg("executing ffmpeg")

	ctx, cancel := context.WithCancel(ctx)
	p := &Process{
		logger: e.logger,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateRunning,
	}

	p.cmd = exec.CommandContext(ctx, e.binary, args...)
	if opts.Stdin != nil {
		p.cmd.Stdin = opts.Stdin
	}
	if opts.Stdout != nil {
		p.cmd.Stdout = opts.Stdout
	}
	p.cmd.WaitDelay = waitDelay

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, errs.Engine("ffmpeg", fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := p.cmd.Start(); err != nil {
		cancel()
		return nil, errs.Engine("ffmpeg", fmt.Errorf("start ffmpeg: %w", err))
	}

	go p.run(ctx, stderr, opts)

	return p, nil
}

func (p *Process) run(ctx context.Context, stderr io.Reader, opts RunOptions) {
	defer close(p.done)
	defer p.cancel()

	p.streamOutput(stderr, opts)

	cmdErr := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.killed || (cmdErr != nil && errors.Is(ctx.Err(), context.Canceled)):
		p.state = StateKilled
		p.err = errs.Cancelled("ffmpeg")
	case cmdErr != nil:
		p.state = StateError
		p.err = errs.Engine("ffmpeg", fmt.Errorf("%w: %s", cmdErr, strings.Join(p.tail, "\n")))
	default:
		p.state = StateDone
		p.logger.Debug().Msg("ffmpeg execution completed")
	}
}

// streamOutput parses progress blocks and keeps the last log lines for
// error reports.
func (p *Process) streamOutput(r io.Reader, opts RunOptions) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	current := Progress{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.ContainsAny(key, " \t[") {
			p.remember(line)
			continue
		}

		switch key {
		case "frame":
			current.Frame, _ = strconv.Atoi(value)
		case "fps":
			current.FPS, _ = strconv.ParseFloat(value, 64)
		case "out_time_us", "out_time_ms":
			// out_time_ms is microseconds as well.
			if us, err := strconv.ParseFloat(value, 64); err == nil {
				current.OutTime = us / 1e6
			}
		case "speed":
			current.Speed = value
		case "progress":
			current.Done = value == "end"
			current.Percent = percent(current.OutTime, opts.Duration, current.Done)
			if opts.OnProgress != nil {
				opts.OnProgress(current)
			}
			current = Progress{}
		default:
			if !isProgressKey(key) {
				p.remember(line)
			}
		}
	}
}

func isProgressKey(key string) bool {
	switch key {
	case "bitrate", "total_size", "out_time", "dup_frames", "drop_frames", "stream_0_0_q":
		return true
	}
	return strings.HasPrefix(key, "stream_")
}

func percent(outTime, duration float64, done bool) float64 {
	if done {
		return 100
	}
	if duration <= 0 || outTime <= 0 {
		return 0
	}
	v := outTime / duration * 100
	if v > 99.9 {
		v = 99.9
	}
	return v
}

func (p *Process) remember(line string) {
	if line == "" {
		return
	}
	p.logger.Trace().Str("line", line).Msg("ffmpeg")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > stderrTail {
		p.tail = p.tail[len(p.tail)-stderrTail:]
	}
}

// Wait blocks until the process exits and returns its error.
func (p *Process) Wait() error {
	<-p.done
	return p.Err()
}

// Kill stops the process. Wait then reports a cancelled error.
func (p *Process) Kill() {
	p.mu.Lock()
	p.killed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Process) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}
