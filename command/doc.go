// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package command turns the command line a client sends into something
// to run.
//
// Tokenize splits the line the way a simple shell would, without any of
// the shell's semantics. A Dispatcher looks the first token up in a
// Registry and asks the Factory found there for a Command. Anything that
// goes wrong along the way yields the Default command, which tells the
// client what it could have asked for.
//
// Two commands are provided: exec, which runs a program in a jail, and
// path, which translates paths between client and server form.
package command
