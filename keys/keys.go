// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keys

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	gossh "golang.org/x/crypto/ssh"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function for the package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// set maps the wire encoding of a key to the parsed key.
type set map[string]gossh.PublicKey

// Store authenticates one user against the keys in a file.
type Store struct {
	user string
	file string
	keys atomic.Pointer[set]
}

// New returns a Store for user, loaded from file. A file that can not be
// read leaves the Store empty; the error is logged and a later Reload
// or Watch may fill it.
func New(user, file string) *Store {
	s := &Store{user: user, file: file}
	s.keys.Store(&set{})
	if err := s.Reload(); err != nil {
		log.Printf("keys: %v", err)
	}
	return s
}

// File returns the name of the authorized keys file.
func (s *Store) File() string {
	return s.file
}

// Len returns the number of keys currently accepted.
func (s *Store) Len() int {
	return len(*s.keys.Load())
}

// Authenticate reports whether user is the configured user and key is in
// the current set.
func (s *Store) Authenticate(user string, key gossh.PublicKey) bool {
	if user != s.user {
		log.Printf("keys: rejecting user %q, only %q may log in", user, s.user)
		return false
	}
	if _, ok := (*s.keys.Load())[string(key.Marshal())]; ok {
		v("keys: accepted %s key %s", key.Type(), gossh.FingerprintSHA256(key))
		return true
	}
	log.Printf("keys: rejecting %s key %s for %q", key.Type(), gossh.FingerprintSHA256(key), user)
	return false
}

// Reload reads the file again and replaces the current set. If the file
// can not be read the current set is kept. Entries that do not parse are
// logged and skipped; they do not fail the reload.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("reading authorized keys: %w", err)
	}
	k, err := parse(data)
	if err != nil {
		log.Printf("keys: %s: %v", s.file, err)
	}
	s.keys.Store(&k)
	v("keys: loaded %d keys from %s", len(k), s.file)
	return nil
}

// parse collects every key in data. Any whitespace separated token
// starting with AAAA is taken to be a base64 wire format key, which
// skips over options, key types and comments without having to
// understand them.
func parse(data []byte) (set, error) {
	var errs error
	k := set{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	// No line can be longer than the file; a long comment or option
	// list must not end the scan early.
	sc.Buffer(make([]byte, 0, 4096), len(data)+1)
	for line := 1; sc.Scan(); line++ {
		for _, tok := range strings.Fields(sc.Text()) {
			if !strings.HasPrefix(tok, "AAAA") {
				continue
			}
			b, err := base64.StdEncoding.DecodeString(tok)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
				continue
			}
			pk, err := gossh.ParsePublicKey(b)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
				continue
			}
			k[string(pk.Marshal())] = pk
		}
	}
	if err := sc.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return k, errs
}
