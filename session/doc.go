// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session is for managing rex sessions, i.e. the process
// started by rexd for one exec request.
//
// New(req, launcher) creates a Session for a Request. Start checks the
// Request against its jail, translates the command line, working
// directory and environment to server form, and hands the result to
// the Launcher. Sessions are very similar to exec.Cmd, providing access
// to Stdin, Stdout and Stderr; those streams are filtered by the
// session's TTYOptions so that line endings look right on the client
// side. If the client asked for a pty and the Launcher could provide
// one, no filtering happens: the terminal line discipline does it.
//
// ExitValue returns when the process it directly started returns. It
// does not wait for children; Destroy kills the whole process group.
package session
