// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/u-root/rex/command"
	"github.com/u-root/rex/jail"
	"github.com/u-root/rex/keys"
	"github.com/u-root/rex/session"
)

const (
	// DefaultPort is the port rexd listens on.
	DefaultPort = "9000"
	// DefaultUser is the only user rexd lets in, unless told otherwise.
	DefaultUser = "rex"
	// DefaultIdleTimeout closes connections with no traffic.
	DefaultIdleTimeout = 60 * time.Minute
	// Version is sent to clients as SSH-2.0-Version.
	Version = "REX-Service"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Config describes a rexd.
type Config struct {
	// Keys decides who gets in. It is required.
	Keys *keys.Store
	// HostKeyFile holds the private host key. It is created if it does
	// not exist. If empty, an ephemeral key is used.
	HostKeyFile string
	// Addr is the address to serve on if the server is started with
	// ListenAndServe.
	Addr        string
	IdleTimeout time.Duration
	// Host describes the machine processes run on.
	Host     jail.Host
	Launcher session.Launcher
}

// New sets up a rexd. rexd is really just an SSH server with a special
// handler and public key authentication.
func New(cfg Config) (*ssh.Server, error) {
	v("configure SSH server")
	if cfg.Keys == nil {
		return nil, errors.New("no authorized keys")
	}
	if cfg.Launcher == nil {
		cfg.Launcher = session.OS{}
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if len(cfg.Addr) == 0 {
		cfg.Addr = ":" + DefaultPort
	}

	d := command.NewDispatcher(command.NewRegistry(cfg.Host, cfg.Launcher))
	s := &ssh.Server{
		Addr:        cfg.Addr,
		Version:     Version,
		IdleTimeout: cfg.IdleTimeout,
		PublicKeyHandler: func(ctx ssh.Context, key ssh.PublicKey) bool {
			return cfg.Keys.Authenticate(ctx.User(), key)
		},
		Handler: Handler(d),
	}
	if len(cfg.HostKeyFile) > 0 {
		k, err := HostKey(cfg.HostKeyFile)
		if err != nil {
			return nil, err
		}
		s.AddHostKey(k)
	}
	return s, nil
}

// Handler returns the ssh.Handler running the Commands d finds. The
// session exits with the status of the Command.
func Handler(d *command.Dispatcher) ssh.Handler {
	return func(s ssh.Session) {
		code := run(d, s)
		v("%s@%v: exit %d", s.User(), s.RemoteAddr(), code)
		if err := s.Exit(code); err != nil {
			v("exit: %v", err)
		}
	}
}

func run(d *command.Dispatcher, s ssh.Session) (code int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("server: %s@%v: internal error: %v", s.User(), s.RemoteAddr(), r)
			fmt.Fprintf(s.Stderr(), "rex: internal error: %v\r\n", r)
			code = command.InternalError
		}
	}()

	raw := s.RawCommand()
	log.Printf("server: %s@%v: %q", s.User(), s.RemoteAddr(), raw)
	ctx, cancel := context.WithCancel(s.Context())
	defer cancel()

	c := d.Dispatch(raw)
	rio := command.IO{
		Stdin:  s,
		Stdout: s,
		Stderr: s.Stderr(),
		Env:    jail.Host{Environ: s.Environ()}.Env(),
	}
	if p, winch, ok := s.Pty(); ok {
		rio.Pty = &session.Pty{
			Term:   p.Term,
			Window: session.Window{Width: p.Window.Width, Height: p.Window.Height},
			Winch:  windows(ctx, winch),
		}
	}
	return c.Run(ctx, rio)
}

// windows relays window changes until ctx is done.
func windows(ctx context.Context, winch <-chan ssh.Window) <-chan session.Window {
	c := make(chan session.Window)
	go func() {
		defer close(c)
		for {
			select {
			case <-ctx.Done():
				return
			case w, ok := <-winch:
				if !ok {
					return
				}
				select {
				case c <- session.Window{Width: w.Width, Height: w.Height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return c
}
