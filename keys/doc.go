// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keys holds the set of public keys rexd accepts.
//
// The set is read from an OpenSSH authorized_keys2 style file and
// replaced wholesale whenever the file changes, so a lookup sees either
// the old set or the new one.
package keys
