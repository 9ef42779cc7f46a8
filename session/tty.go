// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"io"
	"sync"

	"github.com/u-root/rex/jail"
)

// TTYOptions selects the line ending translations applied to the
// process streams.
type TTYOptions uint8

const (
	// ONlCr turns \n on output into \r\n.
	ONlCr TTYOptions = 1 << iota
	// OCrNl turns \r on output into \n.
	OCrNl
	// INlCr turns \n on input into \r.
	INlCr
	// ICrNl turns \r on input into \n.
	ICrNl
	// Echo copies input, once translated, to the error output.
	Echo
)

// Has reports whether all of f are set in o.
func (o TTYOptions) Has(f TTYOptions) bool {
	return o&f == f
}

// For returns the options suited to processes on h. Windows programs
// neither echo nor accept a bare \r as end of line.
func For(h jail.Host) TTYOptions {
	if h.Windows {
		return Echo | ICrNl | ONlCr
	}
	return ONlCr
}

// maxBuffered bounds what a ttyReader holds for its consumer. Once it
// is reached, the pump and echoing writers wait for Read.
const maxBuffered = 64 * 1024

// ttyReader is a translated output stream of a process. A pump
// goroutine moves data from the process into buf; echoed input is
// added to the same buf.
type ttyReader struct {
	mu   sync.Mutex
	cond *sync.Cond
	opts TTYOptions
	buf  []byte
	last byte
	err  error
	// done is set once Read returned err; nobody reads buf after that.
	done bool
}

func newTTYReader(r io.Reader, opts TTYOptions) *ttyReader {
	t := &ttyReader{opts: opts}
	t.cond = sync.NewCond(&t.mu)
	go t.pump(r)
	return t
}

func (t *ttyReader) pump(r io.Reader) {
	b := make([]byte, 32*1024)
	for {
		n, err := r.Read(b)
		if n > 0 {
			t.push(b[:n])
		}
		if err != nil {
			t.mu.Lock()
			t.err = err
			t.cond.Broadcast()
			t.mu.Unlock()
			return
		}
	}
}

// push appends p to the buffer, translating it on the way in. It
// waits while the buffer is full.
func (t *ttyReader) push(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.buf) >= maxBuffered && !t.done {
		t.cond.Wait()
	}
	if t.done {
		return
	}
	for _, c := range p {
		switch {
		case c == '\n' && t.opts.Has(ONlCr) && t.last != '\r':
			t.buf = append(t.buf, '\r', '\n')
		case c == '\r' && t.opts.Has(OCrNl):
			t.buf = append(t.buf, '\n')
			c = '\n'
		default:
			t.buf = append(t.buf, c)
		}
		t.last = c
	}
	t.cond.Broadcast()
}

// Read blocks until there is data or the process side is done.
// Buffered data is always delivered before the error.
func (t *ttyReader) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.buf) == 0 && t.err == nil {
		t.cond.Wait()
	}
	if len(t.buf) == 0 {
		t.done = true
		t.cond.Broadcast()
		return 0, t.err
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	if len(t.buf) == 0 {
		t.buf = nil
	}
	t.cond.Broadcast()
	return n, nil
}

// ttyWriter is the translated input stream of a process.
type ttyWriter struct {
	w    io.WriteCloser
	opts TTYOptions
	echo *ttyReader
}

func (t *ttyWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	for i, c := range p {
		switch {
		case c == '\n' && t.opts.Has(INlCr):
			c = '\r'
		case c == '\r' && t.opts.Has(ICrNl):
			c = '\n'
		}
		b[i] = c
	}
	n, err := t.w.Write(b)
	if t.opts.Has(Echo) && n > 0 {
		t.echo.push(b[:n])
	}
	return n, err
}

func (t *ttyWriter) Close() error {
	return t.w.Close()
}
