// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/u-root/rex/jail"
)

type buf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *buf) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *buf) Close() error { return nil }

func (b *buf) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// fakeProc replays canned output and exits with code when released.
type fakeProc struct {
	in      buf
	out     string
	errOut  string
	code    int
	release chan struct{}
	killed  int
}

func (p *fakeProc) Stdin() io.WriteCloser { return &p.in }
func (p *fakeProc) Stdout() io.Reader     { return strings.NewReader(p.out) }
func (p *fakeProc) Stderr() io.Reader     { return strings.NewReader(p.errOut) }
func (p *fakeProc) Terminal() bool        { return false }
func (p *fakeProc) Resize(Window) error   { return ErrNoTerminal }

func (p *fakeProc) Wait() (int, error) {
	<-p.release
	return p.code, nil
}

func (p *fakeProc) Kill() error {
	p.killed++
	close(p.release)
	return nil
}

// spy records every Spec it is asked to launch.
type spy struct {
	specs []*Spec
	proc  *fakeProc
}

func (s *spy) Launch(sp *Spec) (Proc, error) {
	s.specs = append(s.specs, sp)
	if s.proc == nil {
		s.proc = &fakeProc{release: make(chan struct{})}
	}
	return s.proc, nil
}

func translator(t *testing.T, h jail.Host, raw ...string) *jail.Translator {
	t.Helper()
	r, err := jail.ParseRoots(raw)
	if err != nil {
		t.Fatalf("ParseRoots(%q): %v != nil", raw, err)
	}
	return jail.New(r, h)
}

func TestEscapeLaunchesNothing(t *testing.T) {
	tr := translator(t, jail.Host{Path: "/bin"}, "/srv;/jail")
	for _, tt := range []struct {
		args []string
		dir  string
		env  map[string]string
	}{
		{[]string{"/bin/sh"}, "/jail", nil},
		{[]string{"make"}, "/tmp", nil},
		{[]string{"../../bin/sh"}, "/jail/src", nil},
		{[]string{"$USER"}, "/jail", map[string]string{"USER": "/outside/evil"}},
		{[]string{"$USER"}, "/jail", map[string]string{"_REX_USER": "/outside/evil"}},
		{[]string{"$USER", "-c"}, "/jail/src", map[string]string{"USER": "../../bin/sh"}},
	} {
		l := &spy{}
		s := New(&Request{Args: tt.args, Dir: tt.dir, Env: tt.env, Translator: tr}, l)
		if err := s.Start(); !errors.Is(err, jail.ErrEscape) {
			t.Errorf("Start(%q in %q): got %v, want %v", tt.args, tt.dir, err, jail.ErrEscape)
		}
		if len(l.specs) != 0 {
			t.Errorf("Start(%q in %q): launched %d processes, want 0", tt.args, tt.dir, len(l.specs))
		}
		if s.IsAlive() || s.ExitValue() != -1 {
			t.Errorf("unstarted session: IsAlive %v, ExitValue %d, want false, -1", s.IsAlive(), s.ExitValue())
		}
		s.Destroy()
	}
}

func TestStartTranslates(t *testing.T) {
	h := jail.Host{Path: "/usr/bin", Environ: []string{"LANG=C", "TMP=/tmp"}}
	tr := translator(t, h, "/srv;/jail")
	l := &spy{}
	s := New(&Request{
		Args:       []string{"./build", "--out=/jail/out", "$USER"},
		Dir:        "/jail/src",
		Env:        map[string]string{"USER": "rex", "PATH": "/jail/bin"},
		Translator: tr,
	}, l)
	if err := s.Start(); err != nil {
		t.Fatalf("Start(): %v != nil", err)
	}
	if len(l.specs) != 1 {
		t.Fatalf("Start(): launched %d processes, want 1", len(l.specs))
	}
	sp := l.specs[0]
	if got, want := strings.Join(sp.Args, " "), "/srv/src/build --out=/srv/out rex"; got != want {
		t.Errorf("Args: got %q, want %q", got, want)
	}
	if sp.Dir != "/srv/src" {
		t.Errorf("Dir: got %q, want %q", sp.Dir, "/srv/src")
	}
	for k, want := range map[string]string{"PATH": "/usr/bin:/srv/bin", "LANG": "C", "USER": "rex", "REX_ROOTS": "/srv/;/jail/"} {
		if got := sp.Env[k]; got != want {
			t.Errorf("Env[%q]: got %q, want %q", k, got, want)
		}
	}
	if err := s.Start(); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start(): got %v, want %v", err, ErrStarted)
	}
	s.Destroy()
	s.Destroy()
	if l.proc.killed != 1 {
		t.Errorf("Destroy twice: killed %d times, want 1", l.proc.killed)
	}
	if s.ExitValue() != 0 {
		t.Errorf("ExitValue(): got %d, want 0", s.ExitValue())
	}
}

func TestTTYOutput(t *testing.T) {
	for _, tt := range []struct {
		opts TTYOptions
		in   string
		out  string
	}{
		{ONlCr, "a\nb\n", "a\r\nb\r\n"},
		{ONlCr, "a\r\nb", "a\r\nb"},
		{ONlCr, "\n\n", "\r\n\r\n"},
		{0, "a\nb\r", "a\nb\r"},
		{OCrNl, "a\rb", "a\nb"},
		{ONlCr | OCrNl, "a\r\n", "a\n\r\n"},
	} {
		b, err := io.ReadAll(newTTYReader(strings.NewReader(tt.in), tt.opts))
		if err != nil {
			t.Errorf("ReadAll(%q): %v != nil", tt.in, err)
			continue
		}
		if string(b) != tt.out {
			t.Errorf("translate %q with %#x: got %q, want %q", tt.in, tt.opts, b, tt.out)
		}
	}
}

// newlines counts the bytes handed out by an endless stream of \n.
type newlines struct {
	mu sync.Mutex
	n  int
}

func (r *newlines) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = '\n'
	}
	r.mu.Lock()
	r.n += len(p)
	r.mu.Unlock()
	return len(p), nil
}

func (r *newlines) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func TestTTYOutputBounded(t *testing.T) {
	src := &newlines{}
	r := newTTYReader(src, ONlCr)
	time.Sleep(100 * time.Millisecond)
	r.mu.Lock()
	held := len(r.buf)
	r.mu.Unlock()
	if held > 2*maxBuffered+64*1024 {
		t.Errorf("buffered with no reader: got %d bytes, want at most %d", held, 2*maxBuffered+64*1024)
	}
	if n := src.count(); n > maxBuffered+64*1024 {
		t.Errorf("read from the process with no reader: got %d bytes, want at most %d", n, maxBuffered+64*1024)
	}

	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil || string(b) != "\r\n\r\n" {
		t.Errorf("ReadFull: got (%q, %v), want (%q, nil)", b, err, "\r\n\r\n")
	}
}

// Echo into a reader nobody reads any more must not block input.
func TestTTYEchoAfterDrain(t *testing.T) {
	echo := newTTYReader(strings.NewReader(""), ONlCr)
	if _, err := io.ReadAll(echo); err != nil {
		t.Fatalf("ReadAll(echo): %v != nil", err)
	}
	var in buf
	w := &ttyWriter{w: &in, opts: Echo, echo: echo}
	big := bytes.Repeat([]byte("x"), 4*maxBuffered)
	if _, err := w.Write(big); err != nil {
		t.Fatalf("Write: %v != nil", err)
	}
	if _, err := w.Write(big); err != nil {
		t.Fatalf("Write: %v != nil", err)
	}
	if got := len(in.String()); got != 2*len(big) {
		t.Errorf("process input: got %d bytes, want %d", got, 2*len(big))
	}
}

func TestTTYInputEcho(t *testing.T) {
	echo := newTTYReader(strings.NewReader(""), ONlCr)
	var in buf
	w := &ttyWriter{w: &in, opts: For(jail.Host{Windows: true}), echo: echo}
	if _, err := w.Write([]byte("dir\r")); err != nil {
		t.Fatalf("Write: %v != nil", err)
	}
	if got, want := in.String(), "dir\n"; got != want {
		t.Errorf("process input: got %q, want %q", got, want)
	}
	b, err := io.ReadAll(echo)
	if err != nil {
		t.Fatalf("ReadAll(echo): %v != nil", err)
	}
	if got, want := string(b), "dir\r\n"; got != want {
		t.Errorf("echo: got %q, want %q", got, want)
	}
}

func TestFor(t *testing.T) {
	if got := For(jail.Host{}); got != ONlCr {
		t.Errorf("For(posix): got %#x, want %#x", got, ONlCr)
	}
	if got, want := For(jail.Host{Windows: true}), Echo|ICrNl|ONlCr; got != want {
		t.Errorf("For(windows): got %#x, want %#x", got, want)
	}
}

func osRequest(t *testing.T, args ...string) *Request {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	dir := t.TempDir()
	return &Request{
		Args:       args,
		Dir:        "/jail",
		Env:        map[string]string{},
		Translator: translator(t, jail.Host{Path: "/usr/bin:/bin"}, dir+";/jail"),
		TTY:        ONlCr,
	}
}

func TestOSRun(t *testing.T) {
	v = t.Logf
	s := New(osRequest(t, "sh", "-c", "pwd; echo err >&2; read x; echo got $x; exit 3"), OS{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start(): %v != nil", err)
	}
	if _, err := s.Stdin().Write([]byte("line\n")); err != nil {
		t.Fatalf("Write: %v != nil", err)
	}
	s.Stdin().Close()
	out, err := io.ReadAll(s.Stdout())
	if err != nil {
		t.Fatalf("ReadAll(stdout): %v != nil", err)
	}
	errOut, err := io.ReadAll(s.Stderr())
	if err != nil {
		t.Fatalf("ReadAll(stderr): %v != nil", err)
	}
	if !strings.HasSuffix(string(out), "\r\ngot line\r\n") {
		t.Errorf("stdout: got %q, want suffix %q", out, "\r\ngot line\r\n")
	}
	if string(errOut) != "err\r\n" {
		t.Errorf("stderr: got %q, want %q", errOut, "err\r\n")
	}
	if got := s.ExitValue(); got != 3 {
		t.Errorf("ExitValue(): got %d, want 3", got)
	}
	if s.IsAlive() {
		t.Errorf("IsAlive() after exit: got true, want false")
	}
}

func TestOSNotFound(t *testing.T) {
	s := New(osRequest(t, "rex-no-such-command"), OS{})
	if err := s.Start(); !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Start(): got %v, want %v", err, exec.ErrNotFound)
	}
}

func TestOSDestroy(t *testing.T) {
	s := New(osRequest(t, "sh", "-c", "sleep 100; exit 0"), OS{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start(): %v != nil", err)
	}
	if !s.IsAlive() {
		t.Errorf("IsAlive(): got false, want true")
	}
	s.Destroy()
	if got := s.ExitValue(); got != 128+9 {
		t.Errorf("ExitValue() after Destroy: got %d, want %d", got, 128+9)
	}
	s.Destroy()
}
