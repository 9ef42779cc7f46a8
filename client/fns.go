// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	config "github.com/kevinburke/ssh_config"
	"github.com/mdlayher/vsock"
	"golang.org/x/crypto/ssh"
)

var (
	// DefaultKeyFile is the default key for rex users.
	DefaultKeyFile = filepath.Join(os.Getenv("HOME"), ".ssh/rex_ed25519")

	// lookup reads ~/.ssh/config.
	lookup = config.Get
)

// UserKeyConfig sets up authentication for a User Key.
// It is required in almost all cases.
func (c *Cmd) UserKeyConfig() error {
	kf := GetKeyFile(c.Host, c.PrivateKeyFile)
	key, err := os.ReadFile(kf)
	if err != nil {
		return fmt.Errorf("unable to read private key %q: %w", kf, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("ParsePrivateKey %q: %w", kf, err)
	}
	c.config.Auth = append(c.config.Auth, ssh.PublicKeys(signer))
	return nil
}

// HostKeyConfig sets the host key from a file in authorized_keys
// format, e.g. the .pub half of a key pair. It is optional.
func (c *Cmd) HostKeyConfig(hostKeyFile string) error {
	hk, err := os.ReadFile(hostKeyFile)
	if err != nil {
		return fmt.Errorf("unable to read host key %v: %w", hostKeyFile, err)
	}
	pk, _, _, _, err := ssh.ParseAuthorizedKey(hk)
	if err != nil {
		return fmt.Errorf("host key %v: %w", hostKeyFile, err)
	}
	c.config.HostKeyCallback = ssh.FixedHostKey(pk)
	return nil
}

// SetEnv sets zero or more environment variables for a Session.
// Entries with no name, such as the =C: entries of Windows, are skipped.
func (c *Cmd) SetEnv(envs ...string) error {
	for _, v := range envs {
		env := strings.SplitN(v, "=", 2)
		if len(env[0]) == 0 {
			continue
		}
		if len(env) == 1 {
			env = append(env, "")
		}
		if err := c.session.Setenv(env[0], env[1]); err != nil {
			return fmt.Errorf("c.session.Setenv(%q, %q): %w", env[0], env[1], err)
		}
	}
	return nil
}

// Signal implements ssh.Signal
func (c *Cmd) Signal(s ssh.Signal) error {
	return c.session.Signal(s)
}

// GetKeyFile picks a keyfile if none has been set.
// It will use ssh config, else use a default.
func GetKeyFile(host, kf string) string {
	V("getKeyFile for %q", kf)
	if len(kf) == 0 {
		kf = lookup(host, "IdentityFile")
		V("key file from config is %q", kf)
		// ssh_config's default is ~/.ssh/identity, which is never
		// a rex key.
		if len(kf) == 0 || kf == config.Default("IdentityFile") {
			kf = DefaultKeyFile
		}
	}
	// this is a tad annoying, but the config package doesn't handle ~.
	if strings.HasPrefix(kf, "~") {
		kf = filepath.Join(os.Getenv("HOME"), kf[1:])
	}
	V("getKeyFile returns %q", kf)
	return kf
}

// GetHostName reads the host name from the ssh config file,
// if needed. If it is not found, the host name is returned.
func GetHostName(host string) string {
	h := lookup(host, "HostName")
	if len(h) != 0 {
		host = h
	}
	return host
}

// GetUser reads the user name from the ssh config file. If it is not
// found, DefaultUser is returned.
func GetUser(host string) string {
	if u := lookup(host, "User"); len(u) != 0 {
		return u
	}
	return DefaultUser
}

// GetPort gets a port. It verifies that the port fits in 16-bit space.
// The rules here are messy, since config.Get will return "22" if
// there is no entry in .ssh/config. 22 is not allowed. So in the case
// of "22", convert to DefaultPort.
func GetPort(host, port string) (string, error) {
	p := port
	V("getPort(%q, %q)", host, port)
	if len(port) == 0 {
		if cp := lookup(host, "Port"); len(cp) != 0 {
			V("config.Get(%q,%q): %q", host, port, cp)
			p = cp
		}
	}
	if len(p) == 0 || p == "22" {
		p = DefaultPort
		V("getPort: return default %q", p)
	}
	if _, err := strconv.ParseUint(p, 10, 16); err != nil {
		return "", fmt.Errorf("port %q: %w", p, err)
	}
	V("returns %q", p)
	return p, nil
}

// vsockIdPort gets a client id and a port from host and port
// The id and port are uint32.
func vsockIdPort(host, port string) (uint32, uint32, error) {
	h, err := strconv.ParseUint(host, 0, 32)
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseUint(port, 0, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(h), uint32(p), nil
}

func vsockDial(host, port string) (net.Conn, string, error) {
	id, p, err := vsockIdPort(host, port)
	if err != nil {
		return nil, "", err
	}
	addr := fmt.Sprintf("%#x:%d", id, p)
	V("vsock(%v)", addr)
	conn, err := vsock.Dial(id, p, nil)
	return conn, addr, err
}
