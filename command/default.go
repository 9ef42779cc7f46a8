// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"context"
	"errors"
	"strings"
)

// NoCommand is the exit status of Default.
const NoCommand = 127

// Default explains which commands exist, with the reason the client did
// not get what it asked for, if there is one. It writes to the error
// stream, with \r\n line endings since no pty translation applies.
type Default struct {
	Registry Registry
	Err      error
}

const banner = "\r\n" +
	"\t*** REX Remote EXecution Service ***\r\n" +
	"\r\n" +
	"\tLogin was successful, but you did not specify any (valid)\r\n" +
	"\tcommand to execute. Following commands are available:\r\n"

// Run writes the help text and returns NoCommand.
func (d *Default) Run(_ context.Context, rio IO) int {
	var b strings.Builder
	b.WriteString(banner)
	for _, n := range d.Registry.Names() {
		b.WriteString("\r\n")
		for i, l := range strings.Split(strings.TrimRight(d.Registry[n].Usage(), "\n"), "\n") {
			if i == 0 {
				b.WriteString("\t  " + n + " " + l + "\r\n")
				continue
			}
			b.WriteString("\t\t" + l + "\r\n")
		}
	}
	if d.Err != nil {
		b.WriteString("\r\n\tProblem occurred:\r\n")
		writeChain(&b, d.Err)
		var u *usageError
		if errors.As(d.Err, &u) {
			b.WriteString("\r\n")
			for _, l := range strings.Split(strings.TrimRight(u.flags, "\n"), "\n") {
				b.WriteString("\t" + l + "\r\n")
			}
		}
	}
	b.WriteString("\r\n")
	if rio.Stderr != nil {
		rio.Stderr.Write([]byte(b.String())) //nolint
	}
	return NoCommand
}

// writeChain writes err and each error it wraps, one per line and one
// step further indented. A wrapping error only shows its own text.
func writeChain(b *strings.Builder, err error) {
	indent := "  "
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if next := errors.Unwrap(e); next != nil {
			msg = strings.TrimSuffix(msg, ": "+next.Error())
		}
		msg = strings.ReplaceAll(strings.TrimRight(msg, "\n"), "\n", "\r\n\t"+indent)
		b.WriteString("\t" + indent + msg + "\r\n")
		indent += "  "
	}
}
