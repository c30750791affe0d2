package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestLauncherDispatch(t *testing.T) {
	var out bytes.Buffer
	l := NewLauncher()
	l.Stderr = &out
	var got []string
	l.Register("zeta", "last command", func(args []string) { got = args })
	l.Register("alpha", "first command", func(args []string) { got = args })

	if code := l.Dispatch([]string{"prog", "zeta", "-x", "y"}); code != 0 {
		t.Fatalf("dispatch returned %d", code)
	}
	if strings.Join(got, ",") != "prog zeta,-x,y" {
		t.Fatalf("wrong args: %q", got)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output: %q", out.String())
	}

	if code := l.Dispatch([]string{"prog", "nope"}); code != 1 {
		t.Fatalf("unknown command returned %d", code)
	}
	usage := out.String()
	if !strings.Contains(usage, "Command 'nope' not found.") {
		t.Fatalf("missing not-found message: %q", usage)
	}
	a, z := strings.Index(usage, "alpha  first command"), strings.Index(usage, "zeta   last command")
	if a < 0 || z < 0 || a > z {
		t.Fatalf("commands not listed in sorted aligned order:\n%s", usage)
	}

	out.Reset()
	if code := l.Dispatch([]string{"prog"}); code != 1 || !strings.Contains(out.String(), "Commands:") {
		t.Fatalf("bare invocation did not print usage (%d)", code)
	}
	out.Reset()
	if code := l.Dispatch([]string{"prog", "help"}); code != 0 || !strings.Contains(out.String(), "alpha") {
		t.Fatalf("help did not print usage (%d)", code)
	}
	got = nil
	if code := l.Dispatch([]string{"prog", "help", "alpha"}); code != 0 || strings.Join(got, ",") != "prog alpha,-h" {
		t.Fatalf("help <cmd> did not forward -h: %q", got)
	}
}

func TestLauncherRegisterTwice(t *testing.T) {
	l := NewLauncher()
	l.Register("run", "", func([]string) {})
	for _, name := range []string{"run", "help", ""} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Register(%q) did not panic", name)
				}
			}()
			l.Register(name, "", func([]string) {})
		}()
	}
}
