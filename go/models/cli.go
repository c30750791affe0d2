package models

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// PrintFlags writes flags as an aligned two-column listing wrapped at 80
// columns.
func PrintFlags(w io.Writer, flags []*flag.Flag) {
	wname, wdef := 0, 0
	for _, f := range flags {
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	}
	wdesc := 80 - wname - wdef - 7

	namefmt := fmt.Sprintf("%%-%ds", wname)
	deffmt := fmt.Sprintf("%%-%ds ", wdef+2)
	lpad := strings.Repeat(" ", wname+wdef+7)
	for _, f := range flags {
		fmt.Fprintf(w, "  -"+namefmt, f.Name)
		if f.DefValue != "" && f.DefValue != "[]" && f.DefValue != "false" {
			fmt.Fprintf(w, " "+deffmt, "("+f.DefValue+")")
		} else {
			fmt.Fprintf(w, " "+deffmt, "  ")
		}
		if f.Usage == "" {
			fmt.Fprintln(w)
		}
		for i := 0; i < len(f.Usage); {
			if i > 0 {
				fmt.Fprint(w, lpad)
			}
			l := wdesc
			skip := false
			if i+wdesc > len(f.Usage) {
				l = len(f.Usage) - i
			} else if s := strings.LastIndexAny(f.Usage[i:i+l], " \n"); s > 0 {
				l = s
				skip = true
			}
			fmt.Fprintln(w, f.Usage[i:i+l])
			i += l
			if skip {
				i++
			}
		}
	}
}
