// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows && !plan9

package client

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// winch relays local window size changes to the remote pty.
func (c *Cmd) winch(fd int) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, unix.SIGWINCH)
	c.closers = append(c.closers, func() error {
		signal.Stop(sigs)
		close(done)
		return nil
	})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
			}
			w, h, err := term.GetSize(fd)
			if err != nil {
				V("winch: %v", err)
				continue
			}
			if err := c.session.WindowChange(h, w); err != nil {
				V("WindowChange(%d, %d): %v", h, w, err)
			}
		}
	}()
}
