// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
)

func TestParse(t *testing.T) {
	t.Setenv("REX_PUBKEYS", "/etc/rex/keys")
	t.Setenv("REX_HOSTKEY", "/etc/rex/hostkey")
	t.Setenv("REX_IDLE_TIMEOUT", "5m")
	t.Setenv("USER", "someone")

	o, err := parse(nil)
	if err != nil {
		t.Fatalf("parse(nil): %v != nil", err)
	}
	if o.Port != "9000" || o.User != "rex" || o.Net != "tcp" || o.IdleTimeout != 5*time.Minute {
		t.Errorf("parse(nil): got %+v", o.settings)
	}
	if o.Pubkeys != "/etc/rex/keys" || o.Hostkey != "/etc/rex/hostkey" {
		t.Errorf("parse(nil): keys %q, %q; want the environment's", o.Pubkeys, o.Hostkey)
	}

	t.Setenv("REX_PORT", "9100")
	o, err = parse([]string{"-u", "builder", "-k", "/k", "--net", "tcp4", "-d", "--dnssd", "--ds-txt", "arch=amd64"})
	if err != nil {
		t.Fatalf("parse(flags): %v != nil", err)
	}
	if o.Port != "9100" || o.User != "builder" || o.Pubkeys != "/k" || o.Net != "tcp4" || !o.debug || !o.dnssd || o.dsTxt != "arch=amd64" {
		t.Errorf("parse(flags): got %+v", o)
	}
}

func TestParseErrors(t *testing.T) {
	t.Setenv("REX_PUBKEYS", "")
	t.Setenv("REX_HOSTKEY", "")
	for _, tt := range []struct {
		name string
		args []string
	}{
		{name: "no pubkeys", args: []string{"-h", "/hk"}},
		{name: "no hostkey", args: []string{"-k", "/k"}},
		{name: "extra", args: []string{"-k", "/k", "-h", "/hk", "extra"}},
		{name: "bad flag", args: []string{"--bogus"}},
	} {
		if _, err := parse(tt.args); err == nil {
			t.Errorf("%s:parse(%q): got nil, want error", tt.name, tt.args)
		}
	}
	if _, err := parse([]string{"--help"}); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("parse(--help): got %v, want %v", err, flag.ErrHelp)
	}

	t.Setenv("REX_IDLE_TIMEOUT", "soon")
	if _, err := parse([]string{"-k", "/k", "-h", "/hk"}); err == nil {
		t.Errorf("parse(REX_IDLE_TIMEOUT=soon): got nil, want error")
	}
}
