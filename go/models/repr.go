package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

// Repr quotes p for trace output, escaping non-printable bytes and
// truncating to strsize characters if strsize > 0.
func Repr(p []byte, strsize int) string {
	tmp := make([]string, len(p))
	for i, b := range p {
		switch {
		case b == '\n':
			tmp[i] = "\\n"
		case b >= 0x20 && b <= 0x7e:
			tmp[i] = string(b)
		default:
			tmp[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	out := strings.Join(tmp, "")
	if strsize > 0 && len(out) > strsize {
		for i := len(tmp) - 1; len(out) > strsize-3 && i >= 0; i-- {
			out = strings.Join(tmp[:i], "")
		}
		return "\"" + out + "\"..."
	}
	return "\"" + out + "\""
}

var (
	ColorName  = ansi.ColorCode("default+b")
	ColorError = ansi.ColorCode("red+b")
	ColorPid   = ansi.ColorCode("cyan")
)

// Color wraps s in an ansi color when enabled.
func Color(s, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + ansi.Reset
}

// ColorPad right-aligns s to pad columns before coloring it.
func ColorPad(s, color string, pad int, enabled bool) string {
	length := len(s)
	s = Color(s, color, enabled)
	if length < pad {
		s = strings.Repeat(" ", pad-length) + s
	}
	return s
}
