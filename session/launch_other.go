// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows || plan9

package session

import (
	"errors"
	"os"
	"os/exec"
)

// On Windows the extension decides, see lookPath.
func isExec(os.FileInfo) bool {
	return true
}

func setProcAttr(*exec.Cmd) {}

func kill(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}
	if err := c.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitCode(c *exec.Cmd, err error) (int, error) {
	if c.ProcessState == nil {
		return -1, err
	}
	var e *exec.ExitError
	if err != nil && !errors.As(err, &e) {
		return c.ProcessState.ExitCode(), err
	}
	return c.ProcessState.ExitCode(), nil
}

// There is no pty support; the process gets pipes.
func startPty(*exec.Cmd, *Pty) (Proc, bool, error) {
	return nil, false, nil
}
