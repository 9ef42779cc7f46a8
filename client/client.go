// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/rex/command"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

const (
	defaultTimeOut = 10 * time.Second
	// DefaultPort is the port rexd listens on.
	DefaultPort = "9000"
	// DefaultUser is the user rexd lets in unless configured otherwise.
	DefaultUser = "rex"
)

// V allows debug printing.
var V = func(string, ...interface{}) {}

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	V = f
}

// Cmd is a rex client.
// It implements as much of exec.Command as makes sense.
type Cmd struct {
	config  ssh.ClientConfig
	client  *ssh.Client
	session *ssh.Session
	// As in exec.Command, these controls are exposed and can
	// be set directly.
	Host string
	// HostName as found in .ssh/config; set to Host if not found
	HostName       string
	Args           []string
	HostKeyFile    string
	PrivateKeyFile string
	Port           string
	Timeout        time.Duration
	// Roots are server-path;client-path pairs. If there are none, Args
	// are sent as a plain command line.
	Roots []string
	// Pwd is the client working directory. It must be inside a root.
	Pwd string
	// Env is sent to the server. Command sets it to os.Environ().
	Env []string
	// Pty requests a terminal if Stdin is one.
	Pty    bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	network string
	closers []func() error
}

// Set is an option for a Cmd.
type Set func(*Cmd) error

// Command implements exec.Command. The required parameter is a host.
func Command(host string, args ...string) *Cmd {
	return &Cmd{
		Host:     host,
		HostName: GetHostName(host),
		Args:     args,
		Port:     DefaultPort,
		Timeout:  defaultTimeOut,
		Env:      os.Environ(),
		config: ssh.ClientConfig{
			User:            GetUser(host),
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		network: "tcp",
	}
}

// SetOptions applies opts in order, stopping at the first error.
func (c *Cmd) SetOptions(opts ...Set) error {
	for _, o := range opts {
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// WithPrivateKeyFile sets the identity. Empty means ~/.ssh/config or
// DefaultKeyFile.
func WithPrivateKeyFile(key string) Set {
	return func(c *Cmd) error {
		c.PrivateKeyFile = key
		return nil
	}
}

// WithHostKeyFile sets the file holding the server's public key. Empty
// means the host key is not checked.
func WithHostKeyFile(key string) Set {
	return func(c *Cmd) error {
		c.HostKeyFile = key
		return nil
	}
}

// WithPort sets the port, see GetPort.
func WithPort(port string) Set {
	return func(c *Cmd) error {
		return c.SetPort(port)
	}
}

// WithUser sets the user name. Empty leaves the one from Command.
func WithUser(user string) Set {
	return func(c *Cmd) error {
		if len(user) > 0 {
			c.config.User = user
		}
		return nil
	}
}

// WithRoots adds server-path;client-path pairs.
func WithRoots(roots ...string) Set {
	return func(c *Cmd) error {
		for _, r := range roots {
			if len(r) > 0 {
				c.Roots = append(c.Roots, r)
			}
		}
		return nil
	}
}

// WithPwd sets the client working directory.
func WithPwd(dir string) Set {
	return func(c *Cmd) error {
		c.Pwd = dir
		return nil
	}
}

// WithEnv adds environment variables, in k=v form.
func WithEnv(env ...string) Set {
	return func(c *Cmd) error {
		c.Env = append(c.Env, env...)
		return nil
	}
}

// WithPty requests a remote terminal when stdin is a terminal.
func WithPty(pty bool) Set {
	return func(c *Cmd) error {
		c.Pty = pty
		return nil
	}
}

// WithTimeout sets the dial timeout from a time.Duration string.
func WithTimeout(timeout string) Set {
	return func(c *Cmd) error {
		if len(timeout) == 0 {
			return nil
		}
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
		return nil
	}
}

// WithNetwork sets the network: tcp (the default), tcp4, tcp6, unix or vsock.
func WithNetwork(network string) Set {
	return func(c *Cmd) error {
		if len(network) > 0 {
			c.network = network
		}
		return nil
	}
}

// SetPort sets the port for the Cmd.
func (c *Cmd) SetPort(port string) error {
	var err error
	c.Port, err = GetPort(c.Host, port)
	return err
}

// User returns the user name the Cmd logs in as.
func (c *Cmd) User() string {
	return c.config.User
}

// trimSep removes trailing separators from p. A separator ending an
// argument would be read by the server as escaping the space after it.
func trimSep(p string) string {
	t := strings.TrimRight(p, `/\`)
	if len(t) == 0 || (len(t) == 2 && t[1] == ':') {
		return t + "/"
	}
	return t
}

func trimRoots(roots []string) string {
	var pairs []string
	for _, r := range roots {
		for _, pair := range strings.Split(r, ",") {
			if len(pair) == 0 {
				continue
			}
			s := strings.Split(pair, ";")
			for i := range s {
				if len(s[i]) > 0 {
					s[i] = trimSep(s[i])
				}
			}
			pairs = append(pairs, strings.Join(s, ";"))
		}
	}
	return strings.Join(pairs, ",")
}

// RawCommand is the command line sent to rexd.
func (c *Cmd) RawCommand() string {
	if len(c.Roots) == 0 {
		return command.Quote(c.Args)
	}
	args := []string{"exec", "--roots=" + trimRoots(c.Roots)}
	if len(c.Pwd) > 0 {
		args = append(args, "--pwd="+trimSep(c.Pwd))
	}
	return command.Quote(append(args, c.Args...))
}

// Dial implements ssh.Dial for rex. For unix, HostName is the socket
// path; for vsock, it is the context ID.
func (c *Cmd) Dial() error {
	if err := c.UserKeyConfig(); err != nil {
		return err
	}
	if len(c.HostKeyFile) > 0 {
		if err := c.HostKeyConfig(c.HostKeyFile); err != nil {
			return err
		}
	}
	c.config.Timeout = c.Timeout

	var (
		cl  *ssh.Client
		err error
	)
	addr := net.JoinHostPort(c.HostName, c.Port)
	switch c.network {
	case "vsock":
		var conn net.Conn
		if conn, addr, err = vsockDial(c.HostName, c.Port); err != nil {
			return fmt.Errorf("Failed to dial %v: %w", addr, err)
		}
		cl, err = clientConn(conn, addr, &c.config)
	case "unix":
		cl, err = ssh.Dial(c.network, c.HostName, &c.config)
	default:
		cl, err = ssh.Dial(c.network, addr, &c.config)
	}
	if err != nil {
		return fmt.Errorf("Failed to dial %v: %w", addr, err)
	}
	V("connected to %v as %q, server %q", addr, c.config.User, cl.ServerVersion())
	c.client = cl
	c.closers = append(c.closers, func() error {
		if err := cl.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("closing connection: %w", err)
		}
		return nil
	})
	return nil
}

func clientConn(conn net.Conn, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sc, chans, reqs), nil
}

// Start implements exec.Start for rex.
func (c *Cmd) Start() error {
	var err error
	if c.client == nil {
		return fmt.Errorf("Cmd has no client")
	}
	if c.session, err = c.client.NewSession(); err != nil {
		return err
	}
	s := c.session
	c.closers = append(c.closers, func() error {
		if err := s.Close(); err != nil && err != io.EOF {
			return fmt.Errorf("closing session: %w", err)
		}
		return nil
	})

	if err := c.SetEnv(c.Env...); err != nil {
		return err
	}
	s.Stdin, s.Stdout, s.Stderr = c.Stdin, c.Stdout, c.Stderr
	if c.Pty {
		if err := c.interactive(); err != nil {
			return err
		}
	}

	cmd := c.RawCommand()
	V("call session.Start(%s)", cmd)
	if err := s.Start(cmd); err != nil {
		return fmt.Errorf("Failed to run %q: %w", cmd, err)
	}
	return nil
}

// interactive requests a pty and puts the local terminal in raw mode,
// if stdin is a terminal.
func (c *Cmd) interactive() error {
	f, ok := c.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		V("stdin is not a terminal, not requesting a pty")
		return nil
	}
	fd := int(f.Fd())
	col, row := 80, 40
	if w, h, err := term.GetSize(fd); err != nil {
		V("Can not get winsize: %v; assuming %dx%d", err, col, row)
	} else {
		col, row = w, h
	}
	// Set up terminal modes
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,     // disable echoing
		ssh.TTY_OP_ISPEED: 14400, // input speed = 14.4kbaud
		ssh.TTY_OP_OSPEED: 14400, // output speed = 14.4kbaud
	}
	tn := os.Getenv("TERM")
	if len(tn) == 0 {
		tn = "ansi"
	}
	V("c.session.RequestPty(%q, %v, %v, %#x", tn, row, col, modes)
	if err := c.session.RequestPty(tn, row, col, modes); err != nil {
		return fmt.Errorf("request for pseudo terminal failed: %w", err)
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, func() error {
		return term.Restore(fd, old)
	})
	c.winch(fd)
	return nil
}

// Wait waits for a Cmd to finish.
func (c *Cmd) Wait() error {
	if c.session == nil {
		return fmt.Errorf("Cmd has not been started")
	}
	return c.session.Wait()
}

// Run runs a command with Start, and waits for it to finish with Wait.
func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

// Close ends a rex session, undoing what was set up, latest first.
func (c *Cmd) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if e := c.closers[i](); e != nil {
			err = multierror.Append(err, e)
		}
	}
	c.closers = nil
	return err
}

// ExitCode returns the remote exit status carried by err, as returned
// from Run or Wait. Errors that carry no status give 1; a session that
// ended without one gives 255.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *ssh.ExitError
	if errors.As(err, &e) {
		return e.ExitStatus()
	}
	var m *ssh.ExitMissingError
	if errors.As(err, &m) {
		return 255
	}
	return 1
}
