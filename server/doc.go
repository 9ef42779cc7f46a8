// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is for building rex servers, a.k.a. rexd.
//
// A rexd is an ssh server with a special handler. There is exactly
// one user, and the only way in is a public key listed in its
// authorized keys file. On a normal ssh session, the main task is to
// run a command attached to a stdin, stdout, and stderr; rexd instead
// hands the command line to a command.Dispatcher, which decides what
// runs. Usually that is exec, which runs a program inside a jail of
// shared directories, with paths translated from the client's view of
// those directories to the server's.
//
// rex assumes both sides share storage, e.g. an NFS or SMB export
// mounted on the client and the server at different places. It is not
// a general shell: programs and working directories outside the shared
// roots are refused. It is, however, no stronger a boundary than the
// shared storage itself. Anyone holding the key can run anything they
// can put in the share.
//
// The basic flow of setting up a server is similar to most such
// servers: a call to New(), preceded or followed by a call to
// net.Listen to get a socket, and a call to Serve with the listener.
// For a usage example, see TestServe.
package server
