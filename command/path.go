// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	flag "github.com/spf13/pflag"
	"github.com/u-root/rex/jail"
)

// Path is the Factory for the path command.
type Path struct {
	Host jail.Host
}

type pathFlags struct {
	roots    []string
	toServer []string
	toClient []string
	exists   bool
}

func (p *Path) flags() (*flag.FlagSet, *pathFlags) {
	var f pathFlags
	fs := flag.NewFlagSet("path", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringArrayVarP(&f.roots, "roots", "r", nil, "server-path;client-path[,...] mapping of the shared filesystem")
	fs.StringSliceVarP(&f.toServer, "to-server", "s", nil, "client paths to be converted to server format")
	fs.StringSliceVarP(&f.toClient, "to-client", "c", nil, "server paths to be converted to client format")
	fs.BoolVarP(&f.exists, "check-exists", "e", false, "check whether the path on the server exists. prefixes result with '!' if not")
	return fs, &f
}

// Usage implements Factory.
func (p *Path) Usage() string {
	fs, _ := p.flags()
	return "--roots <server;client,...> [-s <path,...>] [-c <path,...>] [-e]\n" +
		"converts paths between client and server format, one per line.\n" +
		fs.FlagUsages()
}

// New implements Factory.
func (p *Path) New(args []string) (Command, error) {
	fs, f := p.flags()
	if err := fs.Parse(args); err != nil {
		return nil, usage(fs, err)
	}
	if len(f.roots) == 0 {
		return nil, usage(fs, errors.New("--roots is required"))
	}
	r, err := jail.ParseRoots(f.roots)
	if err != nil {
		return nil, usage(fs, err)
	}
	return &pathCommand{t: jail.New(r, p.Host), f: f}, nil
}

type pathCommand struct {
	t *jail.Translator
	f *pathFlags
}

// Run prints the to-server paths, then the to-client paths.
func (c *pathCommand) Run(_ context.Context, rio IO) int {
	nl := "\n"
	if c.t.Host().Windows {
		nl = "\r\n"
	}
	var b strings.Builder
	for _, p := range c.f.toServer {
		s := c.t.TransformPath(p, true)
		if c.f.exists && !c.exists(s) {
			b.WriteString("!")
		}
		b.WriteString(s + nl)
	}
	for _, p := range c.f.toClient {
		b.WriteString(c.t.TransformPath(p, false) + nl)
	}
	if rio.Stdout != nil {
		io.WriteString(rio.Stdout, b.String()) //nolint
	}
	return 0
}

// exists reports whether the server path s exists. Paths inside a root
// are resolved without leaving that root, so a link pointing out of the
// share counts as missing.
func (c *pathCommand) exists(s string) bool {
	if root, rel, ok := c.t.Locate(s); ok {
		p, err := securejoin.SecureJoin(root, rel)
		if err != nil {
			v("path: %q: %v", s, err)
			return false
		}
		s = p
	}
	_, err := os.Stat(s)
	return err == nil
}
