// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jail

import (
	"os"
	"runtime"
	"strings"
)

// Host describes the server side of a translation: its path style,
// the PATH the server itself runs with, and the environment processes
// inherit before client variables are applied.
type Host struct {
	Windows bool
	Path    string
	Environ []string
}

// LocalHost returns the Host for the running process.
func LocalHost() Host {
	return Host{
		Windows: runtime.GOOS == "windows",
		Path:    os.Getenv("PATH"),
		Environ: os.Environ(),
	}
}

// ListSep returns the separator for path lists, e.g. PATH, on the host.
func (h Host) ListSep() string {
	if h.Windows {
		return ";"
	}
	return ":"
}

// Env returns the host environment as a map. Later duplicates win, as
// they do for exec.Cmd.
func (h Host) Env() map[string]string {
	env := make(map[string]string, len(h.Environ))
	for _, kv := range h.Environ {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || len(k) == 0 {
			continue
		}
		env[k] = val
	}
	return env
}
