// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"regexp"
	"strings"
)

// cracker matches a double quoted string, a single quoted string, or a
// run of non-space where a space may be escaped with a backslash. Quotes
// inside a quoted string may be escaped too.
var cracker = regexp.MustCompile(`"(\\+"|[^"])*?"|'(\\+'|[^'])*?'|(\\\s|[^\s])+`)

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// unquote removes quotes that are not escaped and backslashes escaping
// a space, then turns \\ into \.
func unquote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		escaped := i > 0 && s[i-1] == '\\'
		if !escaped {
			if c == '"' || c == '\'' {
				continue
			}
			if c == '\\' && i+1 < len(s) && isSpace(s[i+1]) {
				continue
			}
		}
		b.WriteByte(c)
	}
	return strings.ReplaceAll(b.String(), `\\`, `\`)
}

// Tokenize splits raw into arguments.
//
//	exec --pwd=/jail "echo hello world" C:\dir\file a\ b
//
// yields exec, --pwd=/jail, echo hello world, C:\dir\file and a b.
func Tokenize(raw string) []string {
	m := cracker.FindAllString(raw, -1)
	args := make([]string, 0, len(m))
	for _, s := range m {
		args = append(args, unquote(s))
	}
	return args
}

// Quote joins args into a line that Tokenize splits back into args.
// Quote characters do not survive the trip, nor does a backslash ending
// an argument: it is read as escaping what follows.
func Quote(args []string) string {
	q := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.ReplaceAll(a, `\`, `\\`)
		if len(a) == 0 || strings.ContainsAny(a, " \t\n\v\f\r") {
			a = `"` + a + `"`
		}
		q = append(q, a)
	}
	return strings.Join(q, " ")
}
