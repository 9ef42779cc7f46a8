// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package main

import "log"

func kernelLog() (func(string, ...interface{}), bool) {
	log.Printf("REXD:Warning: -klog is only supported on Linux")
	return nil, false
}
