// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/u-root/rex/jail"
)

// Spec is a Request in server form, ready to be launched.
type Spec struct {
	Args []string
	Dir  string
	Env  map[string]string
	Host jail.Host
	Pty  *Pty
}

// Environ returns Env as sorted key=value pairs.
func (s *Spec) Environ() []string {
	e := make([]string, 0, len(s.Env))
	for k, val := range s.Env {
		e = append(e, k+"="+val)
	}
	sort.Strings(e)
	return e
}

// Proc is a launched process.
type Proc interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait returns the exit status once the process is done.
	Wait() (int, error)
	// Kill kills the process and its children.
	Kill() error
	// Terminal reports whether the process runs on a pty.
	Terminal() bool
	Resize(w Window) error
}

// Launcher starts processes. OS is the only real one; tests use others.
type Launcher interface {
	Launch(s *Spec) (Proc, error)
}

// OS launches processes on the local machine.
type OS struct{}

var _ Launcher = OS{}

// Launch starts s. The executable is looked up in the PATH of s.Env, not
// that of rexd. If s asks for a pty and the host can provide one, the
// process gets a terminal; otherwise its stdio are pipes.
func (OS) Launch(s *Spec) (Proc, error) {
	exe, err := lookPath(s.Args[0], s.Env, s.Host)
	if err != nil {
		return nil, err
	}
	c := &exec.Cmd{Path: exe, Args: s.Args, Dir: s.Dir, Env: s.Environ()}
	log.Printf("session: starting %s in %s", shellquote.Join(s.Args...), s.Dir)
	if s.Pty != nil {
		if p, ok, err := startPty(c, s.Pty); ok {
			return p, err
		}
	}
	return startPipes(c)
}

// lookPath finds name in the PATH of env. Names with a separator are
// only checked for existence.
func lookPath(name string, env map[string]string, h jail.Host) (string, error) {
	var exts []string
	if h.Windows && filepath.Ext(name) == "" {
		exts = strings.Split(strings.ToLower(env["PATHEXT"]), ";")
		if len(env["PATHEXT"]) == 0 {
			exts = []string{".com", ".exe", ".bat", ".cmd"}
		}
	}
	if strings.ContainsAny(name, `/\`) {
		if f, ok := findExecutable(name, exts); ok {
			return f, nil
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	for _, dir := range strings.Split(env["PATH"], h.ListSep()) {
		if len(dir) == 0 {
			continue
		}
		if f, ok := findExecutable(filepath.Join(dir, name), exts); ok {
			return f, nil
		}
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func findExecutable(f string, exts []string) (string, bool) {
	if len(exts) == 0 {
		return f, executable(f)
	}
	for _, e := range exts {
		if len(e) > 0 && executable(f+e) {
			return f + e, true
		}
	}
	return "", false
}

func executable(f string) bool {
	fi, err := os.Stat(f)
	if err != nil || fi.IsDir() {
		return false
	}
	return isExec(fi)
}

// pipeProc is a process with its stdio on pipes. Pipes, rather than the
// io.Copy goroutines of exec.Cmd, keep Wait from returning before the
// output is read.
type pipeProc struct {
	c      *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

func closeAll(f ...*os.File) {
	for _, c := range f {
		if c != nil {
			c.Close()
		}
	}
}

func startPipes(c *exec.Cmd) (Proc, error) {
	var files [6]*os.File
	var err error
	for i := 0; i < len(files); i += 2 {
		if files[i], files[i+1], err = os.Pipe(); err != nil {
			closeAll(files[:]...)
			return nil, err
		}
	}
	inR, inW, outR, outW, errR, errW := files[0], files[1], files[2], files[3], files[4], files[5]
	c.Stdin, c.Stdout, c.Stderr = inR, outW, errW
	setProcAttr(c)
	if err := c.Start(); err != nil {
		closeAll(files[:]...)
		return nil, err
	}
	closeAll(inR, outW, errW)
	return &pipeProc{c: c, stdin: inW, stdout: outR, stderr: errR}, nil
}

func (p *pipeProc) Stdin() io.WriteCloser { return p.stdin }
func (p *pipeProc) Stdout() io.Reader     { return &closingReader{f: p.stdout} }
func (p *pipeProc) Stderr() io.Reader     { return &closingReader{f: p.stderr} }
func (p *pipeProc) Terminal() bool        { return false }
func (p *pipeProc) Kill() error           { return kill(p.c) }

func (p *pipeProc) Resize(Window) error {
	return ErrNoTerminal
}

func (p *pipeProc) Wait() (int, error) {
	err := p.c.Wait()
	p.stdin.Close()
	return exitCode(p.c, err)
}

// closingReader closes its file once it returned an error, so every
// pipe is released after it is drained.
type closingReader struct {
	f *os.File
}

func (r *closingReader) Read(b []byte) (int, error) {
	n, err := r.f.Read(b)
	if err != nil {
		r.f.Close()
	}
	return n, err
}
