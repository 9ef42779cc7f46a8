// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jail translates paths between a client's and a server's view
// of shared storage, and decides whether a path is inside that storage.
//
// The shared storage is described by a set of root mappings. Each
// mapping pairs an absolute server path with the absolute client path
// that names the same directory, e.g. /srv/share on the server and
// S:\ on a Windows client. Nothing outside these roots may be used as
// an executable or a working directory; that is the jail.
//
// Paths may be in either POSIX or drive-letter style on either side.
// The style of the executing OS is never consulted for this; the
// server's own style is described by a Host, which is built once at
// startup and passed in.
package jail
