package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

type command struct {
	name, desc string
	main       func(args []string)
}

// Launcher routes the first argument to a registered subcommand.
type Launcher struct {
	commands map[string]*command
	Stderr   io.Writer
}

func NewLauncher() *Launcher {
	return &Launcher{commands: make(map[string]*command), Stderr: os.Stderr}
}

var launcher = NewLauncher()

// Register adds a subcommand to the default launcher.
func Register(name, desc string, main func(args []string)) { launcher.Register(name, desc, main) }

func (l *Launcher) Register(name, desc string, main func(args []string)) {
	if name == "" || name == "help" || strings.HasPrefix(name, "-") {
		panic(fmt.Sprintf("cmd: reserved command name %q", name))
	}
	if _, ok := l.commands[name]; ok {
		panic(fmt.Sprintf("cmd: %q registered twice", name))
	}
	l.commands[name] = &command{name, desc, main}
}

func (l *Launcher) Usage(prog string) {
	names := make([]string, 0, len(l.commands))
	pad := 0
	for name := range l.commands {
		names = append(names, name)
		if len(name) > pad {
			pad = len(name)
		}
	}
	sort.Strings(names)
	fmt.Fprintf(l.Stderr, "Usage: %s <command> [flags] [args]\n\nCommands:\n", prog)
	for _, name := range names {
		fmt.Fprintf(l.Stderr, "  %-*s  %s\n", pad, name, l.commands[name].desc)
	}
	fmt.Fprintf(l.Stderr, "\nExample: %s run -root build -strace echo hello\n", prog)
}

// Dispatch runs the subcommand named by args[1] and returns the exit status
// for a failed lookup. A found command owns its own exit.
func (l *Launcher) Dispatch(args []string) int {
	if len(args) < 2 {
		l.Usage(args[0])
		return 1
	}
	name := args[1]
	switch name {
	case "help", "-h", "-help", "--help":
		if len(args) > 2 {
			if cmd, ok := l.commands[args[2]]; ok {
				cmd.main([]string{args[0] + " " + cmd.name, "-h"})
				return 0
			}
		}
		l.Usage(args[0])
		return 0
	}
	cmd, ok := l.commands[name]
	if !ok {
		fmt.Fprintf(l.Stderr, "Command '%s' not found.\n\n", name)
		l.Usage(args[0])
		return 1
	}
	cmd.main(append([]string{args[0] + " " + name}, args[2:]...))
	return 0
}

func Main() {
	if code := launcher.Dispatch(os.Args); code != 0 {
		os.Exit(code)
	}
}
