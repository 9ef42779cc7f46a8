// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/u-root/rex/jail"
	"github.com/u-root/rex/session"
)

// InternalError is the exit status of a command that failed in rexd
// rather than in the process it ran.
const InternalError = 255

// Exec is the Factory for the exec command. Help is shown when the
// process can not be started.
type Exec struct {
	Host     jail.Host
	Launcher session.Launcher
	Help     Registry
}

type execFlags struct {
	roots []string
	pwd   string
}

func (e *Exec) flags() (*flag.FlagSet, *execFlags) {
	var f execFlags
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringArrayVarP(&f.roots, "roots", "r", nil, "server-path;client-path[,...] mapping of the shared filesystem")
	fs.StringVarP(&f.pwd, "pwd", "p", "", "client working directory, within one of the roots")
	return fs, &f
}

// Usage implements Factory.
func (e *Exec) Usage() string {
	fs, _ := e.flags()
	return "--roots <server;client,...> --pwd <dir> <cmd...>\n" +
		"executes the given command on the server machine.\n" +
		"'roots' maps mount points of a shared filesystem on the server\n" +
		"to those on the client; the command and pwd must be inside.\n" +
		fs.FlagUsages()
}

// New implements Factory.
func (e *Exec) New(args []string) (Command, error) {
	fs, f := e.flags()
	if err := fs.Parse(args); err != nil {
		return nil, usage(fs, err)
	}
	switch {
	case len(f.roots) == 0:
		return nil, usage(fs, errors.New("--roots is required"))
	case len(f.pwd) == 0:
		return nil, usage(fs, errors.New("--pwd is required"))
	case fs.NArg() == 0:
		return nil, usage(fs, session.ErrNoCommand)
	}
	r, err := jail.ParseRoots(f.roots)
	if err != nil {
		return nil, usage(fs, err)
	}
	return &execCommand{
		req: &session.Request{
			Args:       fs.Args(),
			Dir:        f.pwd,
			Translator: jail.New(r, e.Host),
			TTY:        session.For(e.Host),
		},
		l:    e.Launcher,
		help: e.Help,
	}, nil
}

type execCommand struct {
	req  *session.Request
	l    session.Launcher
	help Registry
}

// Run starts the process and copies its streams until both outputs are
// drained. Cancelling ctx kills the process.
func (c *execCommand) Run(ctx context.Context, rio IO) (code int) {
	id := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("exec %s: internal error: %v", id, r)
			if rio.Stderr != nil {
				fmt.Fprintf(rio.Stderr, "rex: internal error: %v\r\n", r)
			}
			code = InternalError
		}
	}()

	c.req.Env, c.req.Pty = rio.Env, rio.Pty
	s := session.New(c.req, c.l)
	if err := s.Start(); err != nil {
		log.Printf("exec %s: failed to execute: %v", id, err)
		return (&Default{Registry: c.help, Err: err}).Run(ctx, rio)
	}
	v("exec %s: started %q in %q", id, c.req.Args, c.req.Dir)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			v("exec %s: %v", id, ctx.Err())
			s.Destroy()
		case <-done:
		}
	}()

	if p := rio.Pty; p != nil && p.Winch != nil {
		go func() {
			for w := range p.Winch {
				if err := s.Resize(w); err != nil {
					v("exec %s: resize: %v", id, err)
				}
			}
		}()
	}

	go func() {
		if rio.Stdin != nil {
			if _, err := io.Copy(s.Stdin(), rio.Stdin); err != nil {
				v("exec %s: stdin: %v", id, err)
			}
		}
		s.Stdin().Close()
	}()

	var wg sync.WaitGroup
	copyOut := func(w io.Writer, r io.Reader, name string) {
		defer wg.Done()
		if w == nil {
			w = io.Discard
		}
		if _, err := io.Copy(w, r); err != nil {
			v("exec %s: %s: %v", id, name, err)
		}
	}
	wg.Add(2)
	go copyOut(rio.Stdout, s.Stdout(), "stdout")
	go copyOut(rio.Stderr, s.Stderr(), "stderr")
	wg.Wait()

	code = s.ExitValue()
	if code < 0 {
		log.Printf("exec %s: %s: no exit status: %v", id, c.req.Args[0], s.Err())
		if rio.Stderr != nil {
			fmt.Fprintf(rio.Stderr, "rex: %s: lost the exit status: %v\r\n", c.req.Args[0], s.Err())
		}
		return InternalError
	}
	log.Printf("exec %s: %s done, status=%d", id, c.req.Args[0], code)
	return code
}
