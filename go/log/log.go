package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:   "kernel",
		Output: os.Stderr,
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// Verbose lowers the level to Debug unless TRACE already asked for more.
func Verbose() {
	if !L.IsTrace() {
		L.SetLevel(hclog.Debug)
	}
}
