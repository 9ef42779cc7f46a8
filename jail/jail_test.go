// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jail

import (
	"errors"
	"reflect"
	"testing"
)

var posix = Host{Path: "/usr/bin:/bin"}

func mustRoots(t *testing.T, raw ...string) Roots {
	t.Helper()
	r, err := ParseRoots(raw)
	if err != nil {
		t.Fatalf("ParseRoots(%q): %v != nil", raw, err)
	}
	return r
}

func TestIsAbsolute(t *testing.T) {
	for _, tt := range []struct {
		in  string
		out bool
	}{
		{"/a/b", true},
		{`C:\a`, true},
		{"c:/a", true},
		{"rel/a", false},
		{"./a", false},
		{"", false},
		{`\a`, false},
	} {
		if got := IsAbsolute(tt.in); got != tt.out {
			t.Errorf("IsAbsolute(%q): got %v, want %v", tt.in, got, tt.out)
		}
	}
}

func TestParseRoots(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   []string
		out  Roots
		ok   bool
	}{
		{name: "one", in: []string{"/srv;/jail"}, out: Roots{{Server: "/srv/", Client: "/jail/"}}, ok: true},
		{name: "windows", in: []string{`/srv/share;S:\`}, out: Roots{{Server: "/srv/share/", Client: `S:\`}}, ok: true},
		{name: "list", in: []string{"/a;/b,/c;/d"}, out: Roots{{Server: "/a/", Client: "/b/"}, {Server: "/c/", Client: "/d/"}}, ok: true},
		{name: "repeated", in: []string{"/a;/b", "/c;/d"}, out: Roots{{Server: "/a/", Client: "/b/"}, {Server: "/c/", Client: "/d/"}}, ok: true},
		{name: "relative", in: []string{"srv;/jail"}},
		{name: "nosemi", in: []string{"/srv"}},
		{name: "toomany", in: []string{"/a;/b;/c"}},
		{name: "duplicate", in: []string{"/a;/jail", "/b;/jail/"}},
		{name: "empty", in: []string{""}},
	} {
		r, err := ParseRoots(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("%s:ParseRoots(%q): err %v, want ok %v", tt.name, tt.in, err, tt.ok)
			continue
		}
		if tt.ok && !reflect.DeepEqual(r, tt.out) {
			t.Errorf("%s:ParseRoots(%q): got %q, want %q", tt.name, tt.in, r, tt.out)
		}
	}
}

func TestRootsString(t *testing.T) {
	r := mustRoots(t, `/srv;/jail,/w;C:\work`)
	if got, want := r.String(), `/srv/;/jail/,/w/;C:\work\`; got != want {
		t.Errorf("String(): got %q, want %q", got, want)
	}
	if r.ClientWindows() != true {
		t.Errorf("ClientWindows(): got false, want true")
	}
}

func TestInJail(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail", `D:\data;C:\work`), posix)
	for _, tt := range []struct {
		in  string
		out bool
	}{
		{"/jail", true},
		{"/jail/", true},
		{"/jail/a/b", true},
		{"/jail2/a", false},
		{"/jail/../etc", false},
		{"/jail/a/../b", true},
		{"/etc", false},
		{"jail/a", false},
		{`C:\work\x`, true},
		{`c:\WORK\x`, true},
		{"C:/work/x", true},
		{`C:\workshop`, false},
		{`C:\work\..\..\Windows`, false},
		{"", false},
	} {
		if got := tr.InJail(tt.in); got != tt.out {
			t.Errorf("InJail(%q): got %v, want %v", tt.in, got, tt.out)
		}
	}
}

func TestTransformPath(t *testing.T) {
	tr := New(mustRoots(t, "/srv/share;/jail", `/srv/win;C:\work`, "/srv/share/deep;/deep"), posix)
	for _, tt := range []struct {
		in       string
		toServer bool
		out      string
	}{
		{"/jail/a/b", true, "/srv/share/a/b"},
		{"/jail", true, "/srv/share"},
		{"/jail//a///b", true, "/srv/share/a/b"},
		{`C:\work\src\main.c`, true, "/srv/win/src/main.c"},
		{`C:\work`, true, "/srv/win"},
		{"--file=/jail/x", true, "--file=/srv/share/x"},
		{"-I/jail/include", true, "-I/srv/share/include"},
		{"-L/jail/lib", true, "-L/srv/share/lib"},
		{"-isystem/jail/include", true, "-isystem/srv/share/include"},
		{"a-I/jail", true, "a-I/jail"},
		{"-1/jail", true, "-1/jail"},
		{"x/jail/y", true, "x/jail/y"},
		{"/other/jail/x", true, "/other/jail/x"},
		{"/jail2/x", true, "/jail2/x"},
		{"/etc/passwd", true, "/etc/passwd"},
		{"plain", true, "plain"},
		{"/srv/share/a", false, "/jail/a"},
		{"/srv/win/src/main.c", false, `C:\work\src\main.c`},
		{"/srv/share/deep/x", false, "/deep/x"},
		{"/srv/sharex", false, "/srv/sharex"},
	} {
		if got := tr.TransformPath(tt.in, tt.toServer); got != tt.out {
			t.Errorf("TransformPath(%q, %v): got %q, want %q", tt.in, tt.toServer, got, tt.out)
		}
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail", `/export/w;W:\`, `E:\share;/mnt/e`), posix)
	for _, p := range []string{
		"/jail/a",
		"/jail/a/b/c.txt",
		"/jail",
		`W:\x\y`,
		`W:\`,
		"/mnt/e/dir/file",
	} {
		s := tr.TransformPath(p, true)
		if got := tr.TransformPath(s, false); got != p {
			t.Errorf("TransformPath(TransformPath(%q, true) = %q, false): got %q, want %q", p, s, got, p)
		}
	}
}

func TestIdentityOutsideJail(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail"), posix)
	for _, p := range []string{"/tmp/x", "/jailbreak", "relative/jail", `C:\jail`} {
		if got := tr.TransformPath(p, true); got != p {
			t.Errorf("TransformPath(%q, true): got %q, want %q", p, got, p)
		}
		if got := tr.TransformPath(p, false); got != p {
			t.Errorf("TransformPath(%q, false): got %q, want %q", p, got, p)
		}
		if tr.InJail(p) {
			t.Errorf("InJail(%q): got true, want false", p)
		}
	}
}

func TestLocate(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail", "/srv/deep;/deep"), posix)
	for _, tt := range []struct {
		in   string
		root string
		rel  string
		ok   bool
	}{
		{"/srv/a/b", "/srv/", "a/b", true},
		{"/srv/deep/c", "/srv/deep/", "c", true},
		{"/srv", "/srv/", "", true},
		{"/srvx", "", "", false},
	} {
		root, rel, ok := tr.Locate(tt.in)
		if root != tt.root || rel != tt.rel || ok != tt.ok {
			t.Errorf("Locate(%q): got (%q, %q, %v), want (%q, %q, %v)", tt.in, root, rel, ok, tt.root, tt.rel, tt.ok)
		}
	}
}

func TestCheck(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail"), posix)
	for _, tt := range []struct {
		name string
		exe  string
		pwd  string
		ok   bool
	}{
		{name: "inside", exe: "/jail/bin/tool", pwd: "/jail/src", ok: true},
		{name: "path lookup", exe: "make", pwd: "/jail/src", ok: true},
		{name: "dot", exe: "./configure", pwd: "/jail/src", ok: true},
		{name: "dotdot", exe: "../bin/tool", pwd: "/jail/src", ok: true},
		{name: "dotdot escape", exe: "../../bin/sh", pwd: "/jail/src", ok: false},
		{name: "nested escape", exe: "bin/../../../bin/sh", pwd: "/jail/src", ok: false},
		{name: "exe outside", exe: "/bin/sh", pwd: "/jail", ok: false},
		{name: "pwd outside", exe: "/jail/bin/tool", pwd: "/outside/jail", ok: false},
		{name: "pwd relative", exe: "/jail/bin/tool", pwd: "jail", ok: false},
		{name: "pwd sibling", exe: "make", pwd: "/jail2", ok: false},
	} {
		err := tr.Check(tt.exe, tt.pwd)
		if tt.ok && err != nil {
			t.Errorf("%s:Check(%q, %q): %v != nil", tt.name, tt.exe, tt.pwd, err)
		}
		if !tt.ok && !errors.Is(err, ErrEscape) {
			t.Errorf("%s:Check(%q, %q): got %v, want %v", tt.name, tt.exe, tt.pwd, err, ErrEscape)
		}
	}
}

func TestArgs(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail"), posix)
	env := map[string]string{"USER": "rex"}
	for _, tt := range []struct {
		in  []string
		pwd string
		out []string
	}{
		{in: []string{"/jail/bin/cc", "-o", "/jail/out", "$USER"}, pwd: "/jail", out: []string{"/srv/bin/cc", "-o", "/srv/out", "rex"}},
		{in: []string{"./run", "--at=/jail/x"}, pwd: "/jail/proj", out: []string{"/srv/proj/run", "--at=/srv/x"}},
		{in: []string{"../bin/tool"}, pwd: "/jail/proj/", out: []string{"/srv/proj/../bin/tool"}},
		{in: []string{"ls", "-l"}, pwd: "/jail", out: []string{"ls", "-l"}},
		{in: []string{"$USER", "$USER"}, pwd: "/jail", out: []string{"rex", "rex"}},
	} {
		if got := tr.Args(tt.in, tt.pwd, env); !reflect.DeepEqual(got, tt.out) {
			t.Errorf("Args(%q, %q): got %q, want %q", tt.in, tt.pwd, got, tt.out)
		}
	}

	// A substituted executable is resolved like a typed one.
	got := tr.Args([]string{"$USER"}, "/jail/proj", map[string]string{"USER": "./run"})
	if want := []string{"/srv/proj/run"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Args($USER=./run): got %q, want %q", got, want)
	}
}

func TestExecutable(t *testing.T) {
	env := map[string]string{"USER": "/outside/evil"}
	for _, tt := range []struct {
		in  []string
		out string
	}{
		{nil, ""},
		{[]string{"ls", "$USER"}, "ls"},
		{[]string{"$USER"}, "/outside/evil"},
	} {
		if got := Executable(tt.in, env); got != tt.out {
			t.Errorf("Executable(%q): got %q, want %q", tt.in, got, tt.out)
		}
	}
}

func TestPath(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail"), Host{Path: "/usr/bin:/bin"})
	if got, want := tr.Path("/jail/bin:/etc"), "/usr/bin:/bin:/srv/bin"; got != want {
		t.Errorf("Path(%q): got %q, want %q", "/jail/bin:/etc", got, want)
	}
	if got, want := tr.Path(""), "/usr/bin:/bin"; got != want {
		t.Errorf("Path(%q): got %q, want %q", "", got, want)
	}

	win := New(mustRoots(t, `D:\srv;C:\jail`), Host{Windows: true, Path: `C:\Windows`})
	if got, want := win.Path(`C:\jail\bin;C:\Windows;;C:\jail\tools`), `C:\Windows;D:\srv\bin;D:\srv\tools`; got != want {
		t.Errorf("Path(windows): got %q, want %q", got, want)
	}
}

func TestProcessEnvironment(t *testing.T) {
	tr := New(mustRoots(t, "/srv;/jail"), Host{Path: "/usr/bin"})
	src := map[string]string{
		"PATH":        "/jail/bin:/opt/bin",
		"Path":        "ignored",
		"TMP":         "/tmp/client",
		"TEMP":        "/tmp/client",
		"USER":        "rex",
		"_REX_SHELL":  "/bin/sh",
		"_REX_Path":   "/etc",
		"_REX_TMPDIR": "/client/tmp",
		"_REX_TEMP":   "/client/tmp",
		"HOME":        "/jail/home",
	}
	dst := map[string]string{"PATH": "/server", "path": "/server-lower", "LANG": "C"}
	tr.ProcessEnvironment(src, dst)
	want := map[string]string{
		"PATH":      "/usr/bin:/srv/bin",
		"USER":      "rex",
		"SHELL":     "/bin/sh",
		"HOME":      "/jail/home",
		"LANG":      "C",
		"REX_ROOTS": "/srv/;/jail/",
	}
	if !reflect.DeepEqual(dst, want) {
		t.Errorf("ProcessEnvironment: got %q, want %q", dst, want)
	}
}

func TestHostEnv(t *testing.T) {
	h := Host{Environ: []string{"A=1", "B=x=y", "=C:=C:\\", "A=2", "NOVALUE"}}
	want := map[string]string{"A": "2", "B": "x=y"}
	if got := h.Env(); !reflect.DeepEqual(got, want) {
		t.Errorf("Env(): got %q, want %q", got, want)
	}
	if got := (Host{Windows: true}).ListSep(); got != ";" {
		t.Errorf("ListSep(): got %q, want %q", got, ";")
	}
}
