// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/mdlayher/vsock"
	"github.com/u-root/rex/jail"
	"github.com/u-root/rex/keys"
	"github.com/u-root/rex/server"
)

const any = math.MaxUint32

type modifier struct {
	name string
	f    func(*ssh.Server, *opts) (func(), error)
}

func (m *modifier) String() string {
	return m.name
}

// modifiers are called once the ssh server is set up and before
// s.Serve() in serve() is called. A modifier that fails is logged and
// skipped, so it must not leave the server half changed. The func it
// returns is called once serving ends.
var modifiers []*modifier

func listen(network, port string) (net.Listener, error) {
	// Sadly, vsock is not in the standard Go net package.
	// It should be but ...
	var (
		ln  net.Listener
		err error
	)

	switch network {
	case "vsock":
		var p uint64
		p, err = strconv.ParseUint(port, 0, 32)
		if err != nil {
			return nil, err
		}
		ln, err = vsock.ListenContextID(any, uint32(p), nil)

	case "unix", "unixpacket":
		// net.JoinHostPort really ought to work for UDS, but it's very naive.
		// It does not take the network type as a parameter.
		ln, err = net.Listen(network, port)

	default:
		ln, err = net.Listen(network, net.JoinHostPort("", port))
	}
	return ln, err
}

func register(network, addr string, timeout time.Duration) error {
	if len(addr) == 0 {
		return nil
	}
	// if registeraddr is not empty, Dial it over the network,
	// and send the string "ok".
	// This may fail because the host may have incorrectly requested a registration
	// but may not be listening.
	c, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return err
	}
	defer c.Close()
	if _, err := c.Write([]byte("ok")); err != nil {
		return fmt.Errorf("Writing OK to register address: %w", err)
	}
	return nil
}

func newServer(o *opts) (*ssh.Server, *keys.Store, error) {
	store := keys.New(o.User, o.Pubkeys)
	if store.Len() == 0 {
		log.Printf("REXD:Warning: no usable keys in %q; nobody can log in until it is fixed", o.Pubkeys)
	}
	s, err := server.New(server.Config{
		Keys:        store,
		HostKeyFile: o.Hostkey,
		IdleTimeout: o.IdleTimeout,
		Host:        jail.LocalHost(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("New(%q, %q): %w", o.Pubkeys, o.Hostkey, err)
	}
	return s, store, nil
}

func serve(o *opts) error {
	s, store, err := newServer(o)
	if err != nil {
		return err
	}
	v("Server is %v", s)

	ln, err := listen(o.Net, o.Port)
	if err != nil {
		return err
	}
	log.Printf("Listening on %v", ln.Addr())

	// register can return an error, but it should not block serving.
	if err := register(o.Net, o.registerAddr, o.registerTO); err != nil {
		v("Register(%v, %v, %v): %v", o.Net, o.registerAddr, o.registerTO, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Printf("REXD:Warning: not watching %q for changes: %v", store.File(), err)
		}
	}()

	// If there is a hup, we stop serving.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			log.Printf("Received %v, Shutdown rexd listen ...", sig)
			if err := s.Shutdown(ctx); err != nil {
				log.Printf("Shutdown: %v", err)
			}
		case <-ctx.Done():
		}
	}()

	for _, m := range modifiers {
		done, err := m.f(s, o)
		if err != nil {
			log.Printf("Error %v from modifier %s", err, m)
			continue
		}
		defer done()
	}

	if err := s.Serve(ln); err != ssh.ErrServerClosed {
		return fmt.Errorf("s.Serve(): %v != %v", err, ssh.ErrServerClosed)
	}
	v("Daemon returns")
	return nil
}
