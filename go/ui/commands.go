package ui

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/process"
)

type Command struct {
	Name  string
	Usage string
	Desc  string
	// Raw commands take the rest of the line as a single string
	Raw bool
	Run interface{}
}

var commands = make(map[string]*Command)

func cmd(c *Command) *Command {
	fn := reflect.ValueOf(c.Run)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("Command.Run must be a func: got (%T) %#v\n", c.Run, c.Run))
	}
	commands[c.Name] = c
	return c
}

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}

func init() {
	cmd(&Command{
		Name: "help",
		Desc: "List commands.",
		Run: func(s *Shell) {
			names := make([]string, 0, len(commands))
			for name := range commands {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				c := commands[name]
				s.Printf("  %-24s %s\n", c.Name+" "+c.Usage, c.Desc)
			}
		},
	})
	cmd(&Command{
		Name: "run", Usage: "<cmdline>", Raw: true,
		Desc: "Start a process and wait for it.",
		Run: func(s *Shell, cmdline string) error {
			root := s.k.Root()
			pid := s.k.Exec(root, cmdline)
			if pid == process.Failed {
				return errors.Errorf("exec %q failed", cmdline)
			}
			s.Printf("status %d\n", s.k.Wait(root, pid))
			return nil
		},
	})
	cmd(&Command{
		Name: "exec", Usage: "<cmdline>", Raw: true,
		Desc: "Start a process in the background.",
		Run: func(s *Shell, cmdline string) error {
			pid := s.k.Exec(s.k.Root(), cmdline)
			if pid == process.Failed {
				return errors.Errorf("exec %q failed", cmdline)
			}
			s.Printf("pid %d\n", pid)
			return nil
		},
	})
	cmd(&Command{
		Name: "wait", Usage: "<pid>",
		Desc: "Wait for a background process.",
		Run: func(s *Shell, pid int) {
			s.Printf("status %d\n", s.k.Wait(s.k.Root(), pid))
		},
	})
	cmd(&Command{
		Name: "ps",
		Desc: "List live processes.",
		Run: func(s *Shell) {
			for _, p := range s.k.Procs.Snapshots() {
				s.Printf("%5d %s\n", p.Pid, p.Cmdline)
			}
		},
	})
	cmd(&Command{
		Name: "maps", Usage: "<pid>",
		Desc: "Display a process's page mappings.",
		Run: func(s *Shell, pid int) error {
			p, ok := s.k.Procs.Snapshot(pid)
			if !ok {
				return errors.Errorf("no process %d", pid)
			}
			for _, m := range p.Maps {
				s.Printf("  %s\n", m)
			}
			return nil
		},
	})
	cmd(&Command{
		Name: "dump", Usage: "<pid>",
		Desc: "Dump a process descriptor.",
		Run: func(s *Shell, pid int) error {
			p, ok := s.k.Procs.Snapshot(pid)
			if !ok {
				return errors.Errorf("no process %d", pid)
			}
			dumper.Fdump(s.out, p)
			return nil
		},
	})
	cmd(&Command{
		Name: "ls",
		Desc: "List files.",
		Run: func(s *Shell) error {
			names, err := s.k.FS.List()
			if err != nil {
				return err
			}
			sort.Sort(sortorder.Natural(names))
			for _, name := range names {
				s.Printf("%s\n", name)
			}
			return nil
		},
	})
	cmd(&Command{
		Name: "syscalls",
		Desc: "List the system call table.",
		Run: func(s *Shell) {
			t := s.k.Syscalls()
			for i := 0; i < t.Len(); i++ {
				s.Printf("%s\n", t.Lookup(uint32(i)))
			}
		},
	})
	cmd(&Command{
		Name: "halt",
		Desc: "Power off the machine.",
		Run: func(s *Shell) {
			s.k.Halt()
		},
	})
}
