// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jail

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEscape is returned when an executable or working directory is
// not within any mapped root.
var ErrEscape = errors.New("it is not allowed to escape the jail: path must be within one of the mapped roots")

// Translator converts paths, arguments and environments from client to
// server form for one set of Roots.
type Translator struct {
	roots Roots
	host  Host
}

// New returns a Translator for roots on host.
func New(roots Roots, host Host) *Translator {
	return &Translator{roots: roots, host: host}
}

// Roots returns the roots the Translator was created with.
func (t *Translator) Roots() Roots {
	return t.roots
}

// Host returns the host the Translator was created with.
func (t *Translator) Host() Host {
	return t.host
}

// ClientListSep returns the PATH list separator used by the client.
func (t *Translator) ClientListSep() string {
	if t.roots.ClientWindows() {
		return ";"
	}
	return ":"
}

// InJail reports whether p is absolute and, once cleaned, inside one
// of the client roots.
func (t *Translator) InJail(p string) bool {
	if !IsAbsolute(p) {
		return false
	}
	c := clean(p)
	for _, m := range t.roots {
		if _, ok := hasRoot(c, rootKey(m.Client)); ok {
			return true
		}
	}
	return false
}

// Locate splits a server path into the server root holding it and the
// remainder below that root.
func (t *Translator) Locate(p string) (root, rel string, ok bool) {
	best := -1
	for _, m := range t.roots {
		if n, found := hasRoot(p, rootKey(m.Server)); found && n > best {
			best, root = n, m.Server
		}
	}
	if best < 0 {
		return "", "", false
	}
	return root, strings.TrimLeft(p[best:], `/\`), true
}

// boundary reports whether a root may start after c. A root embedded
// in an argument, e.g. --file=/jail/x, is found; one continuing a
// word or another path, e.g. /other/jail, is not.
func boundary(c byte) bool {
	switch {
	case isSep(c), c == '_':
		return false
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return false
	}
	return true
}

// option reports whether s is a short option taking a glued path,
// as in -I/jail/include or -L/jail/lib.
func option(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

// TransformPath replaces the first root found in p with its counterpart
// and renormalizes separators from there on to the style of the target
// root. toServer selects the direction. If no root occurs in p it is
// returned unchanged.
func (t *Translator) TransformPath(p string, toServer bool) string {
	pos, n := -1, 0
	var from, to string
	for _, m := range t.roots {
		src, dst := m.Client, m.Server
		if !toServer {
			src, dst = dst, src
		}
		key := rootKey(src)
		for i := 0; i+len(key) <= len(p); i++ {
			if i > 0 && !boundary(p[i-1]) && !option(p[:i]) {
				continue
			}
			l, ok := hasRoot(p[i:], key)
			if !ok {
				continue
			}
			if pos < 0 || i < pos || (i == pos && l > n) {
				pos, n, from, to = i, l, src, dst
			}
			break
		}
	}
	if pos < 0 {
		return p
	}
	v("transform %q: %q -> %q", p, from, to)
	sep := style(to)
	out := rootKey(to)
	if rest := strings.TrimLeft(p[pos+n:], `/\`); len(rest) > 0 {
		if !isSep(out[len(out)-1]) {
			out += sep
		}
		out += rest
	}
	return p[:pos] + normalize(out, sep)
}

// relative reports whether exe names a file relative to the working
// directory rather than a command to look up in PATH.
func relative(exe string) bool {
	return !IsAbsolute(exe) && (strings.HasPrefix(exe, ".") || strings.ContainsAny(exe, `/\`))
}

// resolve joins a relative executable onto the client working directory.
func resolve(exe, pwd string) string {
	if !relative(exe) {
		return exe
	}
	if exe == "." || strings.HasPrefix(exe, "./") || strings.HasPrefix(exe, `.\`) {
		exe = strings.TrimLeft(exe[1:], `/\`)
	}
	return strings.TrimRight(pwd, `/\`) + "/" + exe
}

// Check verifies that the executable, as resolved against pwd, and pwd
// itself are allowed. Relative executables found via PATH are allowed;
// the PATH handed to processes only contains jailed entries and the
// server's own default.
func (t *Translator) Check(exe, pwd string) error {
	if !IsAbsolute(pwd) || !t.InJail(pwd) {
		return fmt.Errorf("current directory %q: %w", pwd, ErrEscape)
	}
	if r := resolve(exe, pwd); IsAbsolute(r) && !t.InJail(r) {
		return fmt.Errorf("executable %q: %w", exe, ErrEscape)
	}
	return nil
}

// Args translates a client command line to server form. The literal
// $USER is replaced with USER from env, which should be the already
// processed environment. A relative executable, e.g. ./run or
// ../bin/tool, is resolved against pwd first.
func (t *Translator) Args(argv []string, pwd string, env map[string]string) []string {
	cmds := make([]string, len(argv))
	for i, a := range argv {
		if a == "$USER" {
			cmds[i] = env["USER"]
			continue
		}
		cmds[i] = t.TransformPath(a, true)
	}
	if len(argv) > 0 {
		cmds[0] = t.TransformPath(resolve(Executable(argv, env), pwd), true)
	}
	return cmds
}

// Executable returns argv[0] as it will be run, i.e. with $USER
// replaced from env. This is what Check must see.
func Executable(argv []string, env map[string]string) string {
	if len(argv) == 0 {
		return ""
	}
	if argv[0] == "$USER" {
		return env["USER"]
	}
	return argv[0]
}
