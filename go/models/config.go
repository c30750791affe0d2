package models

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// host directory backing the file system
	Root string
	// tar archive loaded into an in-memory file system, used instead of Root
	Image string

	Color     bool
	Strace    bool
	Strsize   int
	TraceFile string
	Verbose   bool

	// physical frames in the pool
	Pages int
	// live process limit
	Procs int
	// parsed image cache entries, 0 disables the cache
	CacheSize int

	// console
	Input  io.Reader
	Output io.Writer
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Pages == 0 {
		c.Pages = 1024
	}
	if c.Procs == 0 {
		c.Procs = 1024
	}
	if c.Strsize == 0 {
		c.Strsize = 30
	}
	if c.Input == nil {
		c.Input = os.Stdin
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	return c
}

// PrefixPath maps a host path given on the command line to a file name
// inside the kernel file system rooted at c.Root.
func (c *Config) PrefixPath(path string) string {
	if c.Root == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(c.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
