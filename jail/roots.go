// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jail

import (
	"fmt"
	"path"
	"strings"
)

// Mapping pairs a server path with the client path naming the same
// directory. Both are absolute and end with a separator.
type Mapping struct {
	Server string
	Client string
}

// Roots is an ordered set of Mappings. The client path is unique.
type Roots []Mapping

// IsAbsolute reports whether p is absolute in either POSIX or
// drive-letter style. It does not depend on the running OS.
func IsAbsolute(p string) bool {
	if len(p) == 0 {
		return false
	}
	return p[0] == '/' || (len(p) > 1 && p[1] == ':')
}

// ParseRoots parses server-path;client-path pairs. Each element of raw
// may itself hold several pairs separated by commas.
func ParseRoots(raw []string) (Roots, error) {
	var r Roots
	for _, item := range raw {
		for _, pair := range strings.Split(item, ",") {
			if len(pair) == 0 {
				continue
			}
			s := strings.Split(pair, ";")
			if len(s) != 2 {
				return nil, fmt.Errorf("invalid roots argument %q, should be 'server-path;client-path'", pair)
			}
			for _, p := range s {
				if !IsAbsolute(p) {
					return nil, fmt.Errorf("only absolute paths are valid for roots, got %q", p)
				}
			}
			m := Mapping{Server: withSep(s[0]), Client: withSep(s[1])}
			for _, o := range r {
				if samePath(rootKey(o.Client), rootKey(m.Client)) {
					return nil, fmt.Errorf("client root %q is mapped more than once", s[1])
				}
			}
			r = append(r, m)
		}
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("no roots given")
	}
	return r, nil
}

// String returns the roots as server;client pairs separated by commas,
// the form exported to processes as REX_ROOTS.
func (r Roots) String() string {
	s := make([]string, 0, len(r))
	for _, m := range r {
		s = append(s, m.Server+";"+m.Client)
	}
	return strings.Join(s, ",")
}

// ClientWindows reports whether the client roots are drive-letter
// paths. All roots are absolute, so a ':' can only come from a drive.
func (r Roots) ClientWindows() bool {
	for _, m := range r {
		if isDrive(m.Client) {
			return true
		}
	}
	return false
}

func isSep(c byte) bool {
	return c == '/' || c == '\\'
}

func isDrive(p string) bool {
	return len(p) > 1 && p[1] == ':'
}

// style returns the separator a path is written with.
func style(p string) string {
	if strings.Contains(p, `\`) || isDrive(p) {
		return `\`
	}
	return "/"
}

func withSep(p string) string {
	if isSep(p[len(p)-1]) {
		return p
	}
	return p + style(p)
}

// rootKey strips trailing separators, except where that would leave
// nothing ("/") or a bare drive ("C:\").
func rootKey(p string) string {
	t := strings.TrimRight(p, `/\`)
	if len(t) == 0 || (len(t) == 2 && t[1] == ':') {
		return p[:len(t)+1]
	}
	return t
}

func samePath(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	_, ok := hasRoot(a, b)
	return ok
}

// hasRoot reports whether p begins with key on a separator boundary.
// Drive-letter keys match either separator style and ignore case;
// POSIX keys only know '/'.
func hasRoot(p, key string) (int, bool) {
	if len(p) < len(key) {
		return 0, false
	}
	win := isDrive(key)
	sep := func(c byte) bool {
		return c == '/' || (win && c == '\\')
	}
	for i := 0; i < len(key); i++ {
		a, b := p[i], key[i]
		switch {
		case a == b:
		case win && isSep(a) && isSep(b):
		case win && lower(a) == lower(b):
		default:
			return 0, false
		}
	}
	if sep(key[len(key)-1]) || len(p) == len(key) || sep(p[len(key)]) {
		return len(key), true
	}
	return 0, false
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// clean lexically cleans p in either style. The result uses '/'.
func clean(p string) string {
	var drive string
	if isDrive(p) {
		drive, p = p[:2], p[2:]
		if len(p) == 0 {
			return drive + "/"
		}
	}
	return drive + path.Clean(strings.ReplaceAll(p, `\`, "/"))
}

// normalize collapses every run of separators in p to sep.
func normalize(p, sep string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if !isSep(p[i]) {
			b.WriteByte(p[i])
			continue
		}
		b.WriteString(sep)
		for i+1 < len(p) && isSep(p[i+1]) {
			i++
		}
	}
	return b.String()
}
