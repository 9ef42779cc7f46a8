// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows && !plan9

package session

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func isExec(fi os.FileInfo) bool {
	return fi.Mode()&0o111 != 0
}

// setProcAttr puts the child in its own process group so that kill
// reaches everything it starts.
func setProcAttr(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func kill(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}
	// The group id is the pid, see setProcAttr; pty children lead
	// their own session, which is also a group.
	if err := unix.Kill(-c.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func exitCode(c *exec.Cmd, err error) (int, error) {
	ps := c.ProcessState
	if ps == nil {
		return -1, err
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	var e *exec.ExitError
	if err != nil && !errors.As(err, &e) {
		return ps.ExitCode(), err
	}
	return ps.ExitCode(), nil
}

// ptyProc is a process running on a pty. Its output and error output
// both arrive on the master side.
type ptyProc struct {
	c    *exec.Cmd
	f    *os.File
	once sync.Once
}

func startPty(c *exec.Cmd, p *Pty) (Proc, bool, error) {
	if len(p.Term) > 0 {
		c.Env = append(c.Env, "TERM="+p.Term)
	}
	ws := &pty.Winsize{Cols: uint16(p.Window.Width), Rows: uint16(p.Window.Height)}
	f, err := pty.StartWithSize(c, ws)
	if err != nil {
		return nil, true, err
	}
	v("session: %q started on a pty", c.Args)
	return &ptyProc{c: c, f: f}, true, nil
}

func (p *ptyProc) Stdin() io.WriteCloser { return p }
func (p *ptyProc) Stdout() io.Reader     { return p }
func (p *ptyProc) Stderr() io.Reader     { return eof{} }
func (p *ptyProc) Terminal() bool        { return true }
func (p *ptyProc) Kill() error           { return kill(p.c) }

func (p *ptyProc) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Close does not close the master, which would take the output with
// it. The process sees end of input when the client sends ^D.
func (p *ptyProc) Close() error {
	return nil
}

// Read returns io.EOF, not EIO, once the slave side is gone.
func (p *ptyProc) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if err != nil {
		p.once.Do(func() { p.f.Close() })
		if errors.Is(err, syscall.EIO) {
			err = io.EOF
		}
	}
	return n, err
}

func (p *ptyProc) Resize(w Window) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: uint16(w.Width), Rows: uint16(w.Height)})
}

func (p *ptyProc) Wait() (int, error) {
	return exitCode(p.c, p.c.Wait())
}

type eof struct{}

func (eof) Read([]byte) (int, error) { return 0, io.EOF }
