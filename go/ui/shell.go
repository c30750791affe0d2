package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/lunixbochs/argjoy"
	"github.com/mattn/go-shellwords"
	"github.com/shibukawa/configdir"

	"github.com/lunixbochs/userprog/go/kernel/userprog"
)

// Shell is an interactive front end to a running kernel. Each line is one
// command; see the help command for the list.
type Shell struct {
	k   *userprog.Kernel
	rl  *readline.Instance
	out io.Writer
}

func NewShell(k *userprog.Kernel) (*Shell, error) {
	// get history path
	configDirs := configdir.New("userprog", "shell")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "\n",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return nil, err
	}
	return &Shell{k: k, rl: rl, out: rl.Stderr()}, nil
}

// newShell runs commands without a terminal, for tests.
func newShell(k *userprog.Kernel, out io.Writer) *Shell {
	return &Shell{k: k, out: out}
}

func (s *Shell) Printf(f string, args ...interface{}) {
	fmt.Fprintf(s.out, f, args...)
}

// Run reads commands until EOF, quit or halt.
func (s *Shell) Run() error {
	defer s.Close()
	for !s.k.Halted() {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "quit" {
			break
		}
		s.Exec(line)
	}
	return nil
}

func (s *Shell) Close() {
	if s.rl != nil {
		s.rl.Close()
	}
}

var aj = argjoy.NewArgjoy()

func init() { aj.Register(parseArg) }

// parseArg converts command words to int and uint64 parameters. Numbers
// take Go prefixes, so 0x10 works.
func parseArg(arg interface{}, vals []interface{}) error {
	str, ok := vals[0].(string)
	if !ok {
		return argjoy.NoMatch
	}
	switch v := arg.(type) {
	case *int:
		n, err := strconv.ParseInt(str, 0, 64)
		if err != nil {
			return err
		}
		*v = int(n)
	case *uint64:
		n, err := strconv.ParseUint(str, 0, 64)
		if err != nil {
			return err
		}
		*v = n
	default:
		return argjoy.NoMatch
	}
	return nil
}

// Exec runs one command line.
func (s *Shell) Exec(line string) {
	args, err := shellwords.Parse(line)
	if err != nil {
		s.Printf("parse error: %v\n", err)
		return
	}
	if len(args) == 0 {
		return
	}
	name := args[0]
	c, ok := commands[name]
	if !ok {
		s.Printf("command not found.\n")
		return
	}
	if c.Raw {
		// the command sees the rest of the line verbatim
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), name))
		args = []string{rest}
	} else {
		args = args[1:]
	}
	if want := reflect.TypeOf(c.Run).NumIn() - 1; want != len(args) {
		s.Printf("usage: %s %s\n", c.Name, c.Usage)
		return
	}
	vals := []interface{}{s}
	for _, arg := range args {
		vals = append(vals, arg)
	}
	out, err := aj.Call(c.Run, vals...)
	if err != nil {
		s.Printf("error: %v\n", err)
	}
	if len(out) > 0 {
		if err, ok := out[0].(error); ok {
			s.Printf("error: %v\n", err)
		}
	}
}
