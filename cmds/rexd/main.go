// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rexd is the REX remote execution server.
//
// Synopsis:
//
//	rexd --pubkeys <authorized_keys> --hostkey <file> [OPTIONS]
//
// Options default to the REX_* environment variables, e.g. REX_PORT
// and REX_PUBKEYS.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	flag "github.com/spf13/pflag"
	"github.com/u-root/rex/command"
	"github.com/u-root/rex/ds"
	"github.com/u-root/rex/jail"
	"github.com/u-root/rex/keys"
	"github.com/u-root/rex/server"
	"github.com/u-root/rex/session"
)

// v allows debug printing.
var v = func(string, ...interface{}) {}

// settings are read from REX_<FIELD> first. There are no envconfig
// tags: a tagged field also matches the bare name, and USER is always
// set.
type settings struct {
	Port        string        `default:"9000"`
	User        string        `default:"rex"`
	Pubkeys     string
	Hostkey     string
	Net         string        `default:"tcp"`
	IdleTimeout time.Duration `split_words:"true" default:"60m"`
}

type opts struct {
	settings
	debug bool
	klog  bool

	registerAddr string
	registerTO   time.Duration

	dnssd       bool
	dsInstance  string
	dsDomain    string
	dsService   string
	dsInterface string
	dsTxt       string
}

func parse(args []string) (*opts, error) {
	o := &opts{}
	if err := envconfig.Process("REX", &o.settings); err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("rexd", flag.ContinueOnError)
	fs.StringVarP(&o.Port, "port", "p", o.Port, "The port to start the server on ($REX_PORT)")
	fs.StringVarP(&o.Pubkeys, "pubkeys", "k", o.Pubkeys, "File containing authorized public keys ($REX_PUBKEYS)")
	fs.StringVarP(&o.User, "user", "u", o.User, "User name required to be used by connecting clients ($REX_USER)")
	fs.StringVarP(&o.Hostkey, "hostkey", "h", o.Hostkey, "Host key file, created if it does not exist ($REX_HOSTKEY)")
	fs.StringVar(&o.Net, "net", o.Net, "network to use: tcp, tcp4, tcp6, unix or vsock ($REX_NET)")
	fs.DurationVar(&o.IdleTimeout, "idle-timeout", o.IdleTimeout, "close connections idle this long ($REX_IDLE_TIMEOUT)")
	fs.BoolVarP(&o.debug, "debug", "d", false, "enable debug prints")
	fs.BoolVar(&o.klog, "klog", false, "Log rexd debug messages in kernel log, not stderr")

	// Some networks are not well behaved, and for them we implement registration.
	fs.StringVar(&o.registerAddr, "register", "", "address and port to register with after listen on rexd port")
	fs.DurationVar(&o.registerTO, "register-timeout", 5*time.Second, "time.Duration for Dial address for registering")

	fs.BoolVar(&o.dnssd, "dnssd", false, "advertise service using DNSSD")
	fs.StringVar(&o.dsInstance, "ds-instance", "", "DNSSD instance name")
	fs.StringVar(&o.dsDomain, "ds-domain", ds.DefaultDomain, "DNSSD domain")
	fs.StringVar(&o.dsService, "ds-service", ds.DefaultService, "DNSSD Service Type")
	fs.StringVar(&o.dsInterface, "ds-interface", "", "DNSSD Interface")
	fs.StringVar(&o.dsTxt, "ds-txt", "", "DNSSD key-value pair string parameterizing advertisement")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments %q", fs.Args())
	}
	if len(o.Pubkeys) == 0 {
		return nil, errors.New("--pubkeys (or REX_PUBKEYS) is required")
	}
	if len(o.Hostkey) == 0 {
		return nil, errors.New("--hostkey (or REX_HOSTKEY) is required")
	}
	return o, nil
}

func commonsetup(o *opts) {
	if !o.debug {
		return
	}
	v = log.Printf
	if o.klog {
		if f, ok := kernelLog(); ok {
			v = f
		}
	}
	for _, set := range []func(func(string, ...interface{})){
		jail.SetVerbose,
		keys.SetVerbose,
		session.SetVerbose,
		command.SetVerbose,
		server.SetVerbose,
		ds.Verbose,
	} {
		set(v)
	}
}

func main() {
	o, err := parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("REXD: %v", err)
	}
	commonsetup(o)
	log.Printf("REXD:PID(%d): starting REX server for user %q", os.Getpid(), o.User)
	if err := serve(o); err != nil {
		log.Fatalf("REXD: %v", err)
	}
}
