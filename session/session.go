// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/u-root/rex/jail"
)

var (
	v = func(string, ...interface{}) {}

	// ErrNoCommand is returned by Start for an empty command line.
	ErrNoCommand = errors.New("no command given")
	// ErrStarted is returned by Start when called twice.
	ErrStarted = errors.New("session already started")
	// ErrNoTerminal is returned by Resize for a process without a pty.
	ErrNoTerminal = errors.New("process has no terminal")
)

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Window is a terminal size in characters.
type Window struct {
	Width  int
	Height int
}

// Pty describes the terminal a client asked for. Winch, if not nil,
// delivers size changes.
type Pty struct {
	Term   string
	Window Window
	Winch  <-chan Window
}

// Request is what a client asked to run. Args, Dir and Env are in client
// form; Translator turns them into server form.
type Request struct {
	Args       []string
	Dir        string
	Env        map[string]string
	Translator *jail.Translator
	TTY        TTYOptions
	Pty        *Pty
}

// Session is one process started for a Request.
type Session struct {
	req  *Request
	l    Launcher
	proc Proc

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	done chan struct{}
	code int
	err  error
	kill sync.Once
}

// New returns a Session that will start req with l.
func New(req *Request, l Launcher) *Session {
	return &Session{req: req, l: l, done: make(chan struct{})}
}

// Start checks and translates the Request and launches the process. No
// process is launched if the executable or working directory are not in
// the jail.
func (s *Session) Start() error {
	if s.proc != nil {
		return ErrStarted
	}
	r := s.req
	if len(r.Args) == 0 {
		return ErrNoCommand
	}
	t := r.Translator
	env := t.Host().Env()
	t.ProcessEnvironment(r.Env, env)

	// $USER comes from the client, so it is checked as substituted.
	if err := t.Check(jail.Executable(r.Args, env), r.Dir); err != nil {
		return err
	}

	spec := &Spec{
		Args: t.Args(r.Args, r.Dir, env),
		Dir:  t.TransformPath(r.Dir, true),
		Env:  env,
		Host: t.Host(),
		Pty:  r.Pty,
	}
	v("session: %q in %q becomes %q in %q", r.Args, r.Dir, spec.Args, spec.Dir)

	p, err := s.l.Launch(spec)
	if err != nil {
		return fmt.Errorf("starting %q: %w", spec.Args[0], err)
	}
	s.proc = p

	opts := r.TTY
	if p.Terminal() {
		opts = 0
	}
	out := newTTYReader(p.Stdout(), opts)
	errs := newTTYReader(p.Stderr(), opts)
	s.stdout, s.stderr = out, errs
	s.stdin = &ttyWriter{w: p.Stdin(), opts: opts, echo: errs}

	go func() {
		s.code, s.err = p.Wait()
		if s.err != nil {
			v("session: wait %q: %v", spec.Args[0], s.err)
		}
		v("session: %q done, status=%d", spec.Args[0], s.code)
		close(s.done)
	}()
	return nil
}

// Stdin is the input of the process.
func (s *Session) Stdin() io.WriteCloser {
	return s.stdin
}

// Stdout is the output of the process.
func (s *Session) Stdout() io.Reader {
	return s.stdout
}

// Stderr is the error output of the process, plus echoed input if the
// Echo option is set.
func (s *Session) Stderr() io.Reader {
	return s.stderr
}

// IsAlive reports whether the process was started and has not exited.
func (s *Session) IsAlive() bool {
	if s.proc == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ExitValue waits for the process and returns its exit status. It
// returns -1 if the process was never started.
func (s *Session) ExitValue() int {
	if s.proc == nil {
		return -1
	}
	<-s.done
	return s.code
}

// Err waits for the process and returns the error, if any, from
// waiting for it. A process that exits with a non-zero status is not
// an error.
func (s *Session) Err() error {
	if s.proc == nil {
		return nil
	}
	<-s.done
	return s.err
}

// Destroy kills the process and everything it started. Calling it more
// than once, or on a Session that never started, does nothing.
func (s *Session) Destroy() {
	if s.proc == nil {
		return
	}
	s.kill.Do(func() {
		if !s.IsAlive() {
			return
		}
		v("session: destroy %q", s.req.Args)
		if err := s.proc.Kill(); err != nil {
			v("session: kill: %v", err)
		}
	})
}

// Resize changes the terminal size of a process started on a pty.
func (s *Session) Resize(w Window) error {
	if s.proc == nil || !s.proc.Terminal() {
		return ErrNoTerminal
	}
	return s.proc.Resize(w)
}
