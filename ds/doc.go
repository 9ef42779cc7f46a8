// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ds advertises a rexd with DNS-SD (Decentralized Services).
//
// The TXT record carries what a client needs to pick a server: os and
// arch, the number of cores, memory, load and the number of sessions
// currently running. Load and tenants are refreshed periodically and
// whenever a session starts or ends.
package ds
