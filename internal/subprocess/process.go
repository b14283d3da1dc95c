package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/qconn/internal/errors"
)

const (
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (callback receives all lines),
	// but the buffer stops growing after this limit to prevent unbounded memory usage.
	maxStderrBufferSize = 1024 * 1024 // 1MB
	// DefaultGracePeriod is how long Close waits for the child to exit after
	// its stdin is closed before killing it.
	DefaultGracePeriod = 5 * time.Second
)

// Config describes the child process to run.
type Config struct {
	// Path is the program to run. It is resolved through PATH when it
	// contains no separator.
	Path string
	// Args are the program arguments, excluding the program name.
	Args []string
	// Env is the child environment. If nil, the current environment is used.
	Env []string
	// Dir is the working directory. If empty, the current directory is used.
	Dir string
	// Stderr receives each line the child writes to stderr.
	Stderr func(line string)
	// GracePeriod bounds how long Close waits for a voluntary exit.
	GracePeriod time.Duration
}

// Process is a running child process used as a duplex stream: reads come
// from its stdout and writes go to its stdin.
type Process struct {
	log    *slog.Logger
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	stderrWg  sync.WaitGroup
	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	mu      sync.Mutex
	closing bool

	stdoutOnce sync.Once
	stdoutDone chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
	exited     chan struct{}
	waitErr    error
}

// Compile-time verification that Process is a duplex stream.
var _ io.ReadWriteCloser = (*Process)(nil)

// New creates a process handle. Nothing runs until Start is called.
func New(log *slog.Logger, cfg Config) *Process {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	return &Process{
		log:        log.With("component", "subprocess"),
		cfg:        cfg,
		stdoutDone: make(chan struct{}),
		closed:     make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// Start spawns the child process.
//
// Cancelling ctx kills the child. Returns ConfigurationError when no program
// is configured or it cannot be found.
func (p *Process) Start(ctx context.Context) error {
	if p.cfg.Path == "" {
		return &errors.ConfigurationError{Reason: "peer command is required"}
	}

	path, err := exec.LookPath(p.cfg.Path)
	if err != nil {
		return &errors.ConfigurationError{Reason: fmt.Sprintf("peer command not found: %v", err)}
	}

	p.log.Info("Starting peer process", "path", path, "args", p.cfg.Args)

	//nolint:gosec // G204: Subprocess launching with dynamic args is expected for peer invocation
	cmd := exec.CommandContext(ctx, path, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = p.cfg.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start peer process", "error", err)

		return fmt.Errorf("start process: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr

	p.stderrWg.Go(p.readStderr)

	go p.wait()

	p.log.Info("Peer process started", "pid", cmd.Process.Pid)

	return nil
}

// Read reads from the child's stdout. It must not be called before Start.
func (p *Process) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if err != nil {
		p.stdoutOnce.Do(func() { close(p.stdoutDone) })
	}

	return n, err
}

// Write writes to the child's stdin.
func (p *Process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close ends the child's input and waits for it to exit, killing it after
// the grace period. It is safe to call Close multiple times.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closing = true
		p.mu.Unlock()

		close(p.closed)

		if p.cmd == nil {
			close(p.exited)

			return
		}

		p.log.Debug("Closing peer stdin")

		if err := p.stdin.Close(); err != nil {
			p.log.Debug("Peer stdin already closed", "error", err)
		}

		select {
		case <-p.exited:
		case <-time.After(p.cfg.GracePeriod):
			p.log.Warn("Peer process did not exit, killing", "pid", p.cmd.Process.Pid)

			if err := p.cmd.Process.Kill(); err != nil {
				p.log.Debug("Kill failed", "error", err)
			}

			<-p.exited
		}
	})

	return nil
}

// Exited returns a channel that is closed once the child has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err returns the exit error once the child has exited: a ProcessError for
// an unsuccessful exit, or nil for a clean exit or one caused by Close.
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Stderr returns the buffered stderr output.
func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return strings.TrimSpace(p.stderrBuf.String())
}

// wait reaps the child once its output is consumed or the process is closed.
func (p *Process) wait() {
	defer close(p.exited)

	// cmd.Wait closes stdout, so let the reader drain it first.
	select {
	case <-p.stdoutDone:
	case <-p.closed:
	}

	p.stderrWg.Wait()

	err := p.cmd.Wait()
	if err == nil {
		p.log.Info("Peer process exited successfully")

		return
	}

	p.mu.Lock()
	closing := p.closing
	p.mu.Unlock()

	exitCode := -1
	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		exitCode = exitErr.ExitCode()
	}

	if closing {
		p.log.Debug("Peer process terminated during shutdown", "exit_code", exitCode)

		return
	}

	stderr := p.Stderr()

	p.log.Error("Peer process exited with error", "exit_code", exitCode, "stderr", stderr)

	p.waitErr = &errors.ProcessError{
		ExitCode: exitCode,
		Stderr:   stderr,
		Err:      err,
	}
}

// readStderr buffers stderr and forwards each line to the callback.
func (p *Process) readStderr() {
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		line := scanner.Text()

		p.stderrMu.Lock()

		if p.stderrBuf.Len() < maxStderrBufferSize {
			if p.stderrBuf.Len() > 0 {
				p.stderrBuf.WriteString("\n")
			}

			p.stderrBuf.WriteString(line)
		}

		p.stderrMu.Unlock()

		if p.cfg.Stderr != nil {
			p.cfg.Stderr(line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.log.Debug("Stderr scanner error", "error", err)
	}
}
