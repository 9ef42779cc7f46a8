// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/u-root/u-root/pkg/ulog"
)

func kernelLog() (func(string, ...interface{}), bool) {
	ulog.KernelLog.Reinit()
	return ulog.KernelLog.Printf, true
}
