// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/gliderlabs/ssh"
	"github.com/u-root/rex/ds"
)

func init() {
	modifiers = append(modifiers, &modifier{f: serveDNSSD, name: "dnssd"})
}

// serveDNSSD advertises the server and counts its sessions as tenants.
func serveDNSSD(s *ssh.Server, o *opts) (func(), error) {
	if !o.dnssd {
		return func() {}, nil
	}
	p, err := strconv.Atoi(o.Port)
	if err != nil {
		return nil, fmt.Errorf("Could not parse port: %s, %w", o.Port, err)
	}
	txt := ds.ParseKv(o.dsTxt)
	v("Advertising w/dnssd %q", txt)
	a, err := ds.Register(ds.Config{
		Instance:  o.dsInstance,
		Domain:    o.dsDomain,
		Service:   o.dsService,
		Interface: o.dsInterface,
		Port:      p,
		Txt:       txt,
	})
	if err != nil {
		return nil, fmt.Errorf("Could not advertise with dns-sd: %w", err)
	}
	s.Handler = a.Wrap(s.Handler)
	return a.Unregister, nil
}
