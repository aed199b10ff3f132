// Package procsup spawns child processes, streams their output line by line
// to caller supplied sinks and terminates whole process trees on demand.
package procsup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Command describes a child process.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// LineSink receives one completed output line. Returning an error escalates a
// fatal condition: the process tree is killed and the error is returned by Wait.
type LineSink func(line string) error

// Sinks groups the per-stream line consumers. Nil sinks discard output.
type Sinks struct {
	Stdout LineSink
	Stderr LineSink
}

// SinkError is returned by Wait when a sink escalated a fatal condition.
type SinkError struct {
	Stream string
	Line   string
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("fatal output on %s: %v", e.Stream, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Handle is a running child process. It is owned by the caller that spawned it.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

// Spawn starts the command and its output readers. Cancelling ctx kills the
// process tree.
func Spawn(ctx context.Context, c Command, sinks Sinks) (*Handle, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	configureCommandProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %q: %w", c.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe for %q: %w", c.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", c.Name, err)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}

	var group errgroup.Group
	group.Go(func() error { return h.pump(StreamStdout, stdout, sinks.Stdout) })
	group.Go(func() error { return h.pump(StreamStderr, stderr, sinks.Stderr) })

	go func() {
		// the pipes must be drained before cmd.Wait closes them
		sinkErr := group.Wait()
		exitErr := cmd.Wait()
		if sinkErr != nil {
			h.err = sinkErr
		} else {
			h.err = exitErr
		}
		close(h.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Kill()
		case <-h.done:
		}
	}()

	return h, nil
}

// Run spawns the command and waits for it.
func Run(ctx context.Context, c Command, sinks Sinks) error {
	h, err := Spawn(ctx, c, sinks)
	if err != nil {
		return err
	}
	return h.Wait()
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Done is closed once the process exited and all output was delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and every buffered line has been
// delivered. A sink escalation takes precedence over the exit status.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Kill terminates the process and all its descendants. A process that is
// already gone is not an error.
func (h *Handle) Kill() error {
	h.killOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		h.killErr = KillTree(h.cmd.Process.Pid)
		terminateCommandProcess(h.cmd)
	})
	return h.killErr
}

func (h *Handle) pump(stream string, r io.Reader, sink LineSink) error {
	br := bufio.NewReader(r)
	var escalated error
	for {
		raw, readErr := br.ReadBytes('\n')
		if len(raw) > 0 && sink != nil && escalated == nil {
			line := decodeLine(raw)
			if err := sink(line); err != nil {
				escalated = &SinkError{Stream: stream, Line: line, Err: err}
				_ = h.Kill()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, os.ErrClosed) {
				return escalated
			}
			if escalated != nil {
				return escalated
			}
			return fmt.Errorf("read %s: %w", stream, readErr)
		}
	}
}

// decodeLine strips the line terminator and decodes GBK output produced by
// tools running under a Chinese locale.
func decodeLine(raw []byte) string {
	raw = bytes.TrimRight(raw, "\r\n")
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw); err == nil {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

// LogSink forwards lines to logger, inferring the level from the line prefix.
func LogSink(logger hclog.Logger) LineSink {
	w := logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
	return func(line string) error {
		_, _ = io.WriteString(w, line+"\n")
		return nil
	}
}

// CollectSink appends every line to buf.
func CollectSink(buf *[]string) LineSink {
	var mu sync.Mutex
	return func(line string) error {
		mu.Lock()
		*buf = append(*buf, line)
		mu.Unlock()
		return nil
	}
}

// Tee calls every non-nil sink in order and stops at the first error.
func Tee(sinks ...LineSink) LineSink {
	return func(line string) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s(line); err != nil {
				return err
			}
		}
		return nil
	}
}
