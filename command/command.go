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
	"sort"

	flag "github.com/spf13/pflag"
	"github.com/u-root/rex/jail"
	"github.com/u-root/rex/session"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

var (
	// ErrUsage is matched by errors caused by bad arguments.
	ErrUsage = errors.New("invalid arguments")
	// ErrUnknown is used when no Factory has the requested name.
	ErrUnknown = errors.New("unknown command")
)

// IO is what a Command gets to work with: the streams of the ssh
// channel, the environment the client sent, and the pty the client
// asked for, if any.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
	Pty    *session.Pty
}

// Command is a ready to run request. Run returns the exit status to
// report to the client.
type Command interface {
	Run(ctx context.Context, rio IO) int
}

// Factory creates Commands from the arguments following the command
// name.
type Factory interface {
	// Usage describes what the command does and takes. The first line
	// is a synopsis.
	Usage() string
	New(args []string) (Command, error)
}

// Registry maps command names to Factories.
type Registry map[string]Factory

// Names returns the registered names in order.
func (r Registry) Names() []string {
	n := make([]string, 0, len(r))
	for k := range r {
		n = append(n, k)
	}
	sort.Strings(n)
	return n
}

// NewRegistry returns the rex commands, exec and path, for h. Processes
// are started with l.
func NewRegistry(h jail.Host, l session.Launcher) Registry {
	r := Registry{}
	r["exec"] = &Exec{Host: h, Launcher: l, Help: r}
	r["path"] = &Path{Host: h}
	return r
}

// Dispatcher finds the Command for a command line.
type Dispatcher struct {
	reg Registry
}

// NewDispatcher returns a Dispatcher for r.
func NewDispatcher(r Registry) *Dispatcher {
	return &Dispatcher{reg: r}
}

// Registry returns the Registry the Dispatcher uses.
func (d *Dispatcher) Registry() Registry {
	return d.reg
}

// Dispatch tokenizes raw and returns the Command it names. It always
// returns a Command: empty lines, unknown names, and Factory errors or
// panics give a Default with the cause attached.
func (d *Dispatcher) Dispatch(raw string) (c Command) {
	args := Tokenize(raw)
	if len(args) == 0 {
		v("dispatch: no command, %q", raw)
		return &Default{Registry: d.reg}
	}
	name := args[0]
	f, ok := d.reg[name]
	if !ok {
		log.Printf("dispatch: %q: %v", name, ErrUnknown)
		return &Default{Registry: d.reg, Err: fmt.Errorf("%q: %w", name, ErrUnknown)}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: cannot create command %s for %q: %v", name, args[1:], r)
			c = &Default{Registry: d.reg, Err: fmt.Errorf("%s: internal error: %v", name, r)}
		}
	}()
	c, err := f.New(args[1:])
	if err != nil {
		log.Printf("dispatch: cannot create command %s for %q: %v", name, args[1:], err)
		return &Default{Registry: d.reg, Err: fmt.Errorf("%s: %w", name, err)}
	}
	v("dispatch: %q -> %s", raw, name)
	return c
}

// usageError carries the flag descriptions of the command whose
// arguments were bad.
type usageError struct {
	err   error
	flags string
}

func (e *usageError) Error() string        { return e.err.Error() }
func (e *usageError) Unwrap() error        { return e.err }
func (e *usageError) Is(target error) bool { return target == ErrUsage }

func usage(fs *flag.FlagSet, err error) error {
	return &usageError{err: err, flags: fs.FlagUsages()}
}
