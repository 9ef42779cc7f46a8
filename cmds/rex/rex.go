// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rex runs a command on a rexd.
//
// Synopsis:
//
//	rex [OPTIONS] host [command [args...]]
//
// With --roots, the command runs through the exec sub-command in the
// current directory, which must be inside one of the client roots.
// Without, the arguments are sent as they are, e.g.
//
//	rex buildhost path -r '/srv/share;/jail' -s /jail/src
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/u-root/rex/client"
)

var v = func(string, ...interface{}) {}

type opts struct {
	roots       []string
	pwd         string
	keyFile     string
	hostKeyFile string
	port        string
	user        string
	network     string
	timeout     string
	env         []string
	pty         bool
	debug       bool
}

func parse(args []string) (*opts, []string, error) {
	o := &opts{}
	fs := flag.NewFlagSet("rex", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringArrayVarP(&o.roots, "roots", "r", nil, "server-path;client-path[,...] pairs; runs the command through exec")
	fs.StringVarP(&o.pwd, "pwd", "p", "", "client working directory for exec (default: the current directory)")
	fs.StringVarP(&o.keyFile, "key", "i", "", "key file")
	fs.StringVar(&o.hostKeyFile, "hk", "", "file for the server's public host key")
	fs.StringVar(&o.port, "sp", "", "rexd port (default: ~/.ssh/config, else "+client.DefaultPort+")")
	fs.StringVarP(&o.user, "user", "u", "", "user (default: ~/.ssh/config, else "+client.DefaultUser+")")
	fs.StringVar(&o.network, "net", "", "network type to use. Defaults to whatever the rex client defaults to")
	fs.StringVar(&o.timeout, "timeout", "", "dial timeout")
	fs.StringArrayVarP(&o.env, "env", "e", nil, "extra k=v environment variable to send")
	fs.BoolVarP(&o.pty, "tty", "t", false, "request a terminal if stdin is one")
	fs.BoolVarP(&o.debug, "debug", "d", false, "enable debug prints")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		return nil, nil, fmt.Errorf("Usage: rex [options] host [command]:\n%v", fs.FlagUsages())
	}
	if len(o.roots) > 0 && len(o.pwd) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		o.pwd = wd
	}
	return o, fs.Args(), nil
}

func run(o *opts, host string, args ...string) error {
	c := client.Command(host, args...)
	defer c.Close()
	if err := c.SetOptions(
		client.WithPrivateKeyFile(o.keyFile),
		client.WithHostKeyFile(o.hostKeyFile),
		client.WithPort(o.port),
		client.WithUser(o.user),
		client.WithNetwork(o.network),
		client.WithTimeout(o.timeout),
		client.WithRoots(o.roots...),
		client.WithPwd(o.pwd),
		client.WithEnv(o.env...),
		client.WithPty(o.pty)); err != nil {
		return err
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Dial(); err != nil {
		return fmt.Errorf("Dial: %w", err)
	}
	v("REX:run %q", c.RawCommand())
	if err := c.Run(); err != nil {
		return err
	}
	v("REX:close")
	return c.Close()
}

func main() {
	o, args, err := parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}
	if o.debug {
		v = log.Printf
		client.SetVerbose(log.Printf)
	}
	err = run(o, args[0], args[1:]...)
	if err == nil {
		return
	}
	e := client.ExitCode(err)
	if e == 1 {
		log.Printf("REX: %v", err)
	}
	os.Exit(e)
}
