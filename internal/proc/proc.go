// Package proc runs cache roles either as goroutines or as child processes
// behind one supervision handle.
package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"sync"
	"syscall"
)

// Child represents a supervised role
type Child struct {
	Name   string
	done   chan struct{}
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

// Go runs fn in a goroutine with its own cancellable context
func Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Child {
	ctx, cancel := context.WithCancel(ctx)
	c := &Child{Name: name, done: make(chan struct{}), cancel: cancel}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v\n%s", name, r, debug.Stack())
			}
			cancel()
			c.finish(err)
		}()
		err = fn(ctx)
	}()
	return c
}

// Exec starts executable as a child process; env is appended to the parent environment
func Exec(ctx context.Context, name, executable string, args []string, env ...string) (*Child, error) {
	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Child{Name: name, done: make(chan struct{}), cancel: cancel, cmd: cmd}
	go func() {
		select {
		case <-ctx.Done():
			_ = c.signal(syscall.SIGTERM)
		case <-c.done:
		}
	}()
	go func() {
		err := cmd.Wait()
		cancel()
		c.finish(err)
	}()
	return c, nil
}

func (c *Child) finish(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Done is closed when the role exits
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Err returns the exit error once Done is closed
func (c *Child) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Exited returns true if the role has exited
func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Pid returns the child process id, or the current process id for goroutines
func (c *Child) Pid() int {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return os.Getpid()
}

// Terminate asks the role to exit: SIGTERM for processes, context cancel for goroutines
func (c *Child) Terminate() error {
	if c.cmd == nil {
		c.cancel()
		return nil
	}
	return c.signal(syscall.SIGTERM)
}

// Kill stops the role immediately
func (c *Child) Kill() error {
	if c.cmd == nil {
		c.cancel()
		return nil
	}
	return c.signal(syscall.SIGKILL)
}

func (c *Child) signal(sig os.Signal) error {
	if c.Exited() {
		return nil
	}
	if err := c.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal %s: %w", c.Name, err)
	}
	return nil
}

// Wait blocks until the role exits or ctx is done
func (c *Child) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
