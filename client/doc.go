// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client runs commands on a rexd.
//
// A Cmd is set up like an exec.Cmd, with options for the parts rexd
// needs to know about:
//
//	c := client.Command("buildhost", "make", "-C", "/jail/src")
//	if err := c.SetOptions(
//		client.WithRoots("/srv/share;/jail"),
//		client.WithPwd("/jail/src")); err != nil {
//		...
//	}
//	c.Stdout, c.Stderr = os.Stdout, os.Stderr
//	if err := c.Dial(); err != nil {
//		...
//	}
//	defer c.Close()
//	os.Exit(client.ExitCode(c.Run()))
//
// With roots set, the command is sent as an exec sub-command; without,
// the arguments are sent as they are, which is how the path sub-command
// and the banner are reached.
//
// Host names, ports, users and identity files not given explicitly are
// looked up in ~/.ssh/config.
package client
