// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jail

import (
	"strings"
)

const (
	varPath   = "PATH"
	varRoots  = "REX_ROOTS"
	rexPrefix = "_REX_"
)

var (
	v = func(string, ...interface{}) {}

	// client-local temporary directories mean nothing on the server.
	denied = map[string]bool{"TMP": true, "TEMP": true, "TMPDIR": true}
)

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// ProcessEnvironment copies the client environment src into dst, which
// usually holds the host environment already.
//
// Variables that differ from PATH only in case are dropped, as are
// client temporary directories. A _REX_ prefix is stripped, so clients
// can set variables their ssh would not pass. REX_ROOTS is set to the
// roots, and PATH becomes the host PATH followed by the jailed entries
// of the client PATH, translated to server form.
func (t *Translator) ProcessEnvironment(src, dst map[string]string) {
	for k := range dst {
		if strings.EqualFold(k, varPath) && k != varPath {
			delete(dst, k)
		}
	}
	for k, val := range src {
		k = strings.TrimPrefix(k, rexPrefix)
		if len(k) == 0 || denied[k] {
			continue
		}
		if strings.EqualFold(k, varPath) && k != varPath {
			continue
		}
		dst[k] = val
	}
	dst[varRoots] = t.roots.String()
	dst[varPath] = t.Path(src[varPath])
}

// Path merges a client PATH value into the host PATH. Entries outside
// the jail are dropped.
func (t *Translator) Path(client string) string {
	var parts []string
	if len(t.host.Path) > 0 {
		parts = append(parts, t.host.Path)
	}
	if len(client) > 0 {
		for _, p := range strings.Split(client, t.ClientListSep()) {
			if len(p) == 0 {
				continue
			}
			if !t.InJail(p) {
				v("skip out-of-jail PATH member %q", p)
				continue
			}
			parts = append(parts, t.TransformPath(p, true))
		}
	}
	return strings.Join(parts, t.host.ListSep())
}
