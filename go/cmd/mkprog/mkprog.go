package mkprog

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/cmd"
	"github.com/lunixbochs/userprog/go/cpu"
	"github.com/lunixbochs/userprog/go/loader"
	"github.com/lunixbochs/userprog/go/models"
	mcpu "github.com/lunixbochs/userprog/go/models/cpu"
)

const DefaultBase = 0x08048000

type Options struct {
	Base uint32
	// zeroed read/write pages after the code
	Bss uint32
}

// Build assembles src into an executable the loader accepts. Code is
// mapped read/execute at Base, and entry is its first byte.
func Build(src string, opts Options) ([]byte, []byte, error) {
	if opts.Base == 0 {
		opts.Base = DefaultBase
	}
	ks := cpu.NewKeystone()
	defer ks.Close()
	code, err := ks.Asm(src, opts.Base)
	if err != nil {
		return nil, nil, err
	}
	if len(code) == 0 {
		return nil, nil, errors.New("no code assembled")
	}
	progs := []loader.Prog{{
		Type:  loader.PT_LOAD,
		Flags: loader.PF_R | loader.PF_X,
		Vaddr: opts.Base,
		Data:  code,
	}}
	if opts.Bss > 0 {
		progs = append(progs, loader.Prog{
			Type:  loader.PT_LOAD,
			Flags: loader.PF_R | loader.PF_W,
			Vaddr: uint32(mcpu.PageRoundUp(uint64(opts.Base) + uint64(len(code)))),
			Memsz: opts.Bss,
		})
	}
	exe, err := loader.NewExec(opts.Base, progs...).Bytes()
	return exe, code, err
}

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	out := fs.String("o", "a.out", "output file")
	base := fs.Uint("base", DefaultBase, "load address of the code")
	bss := fs.Uint("bss", 0, "bytes of zeroed data after the code")
	dis := fs.Bool("dis", false, "print a disassembly of the assembled code")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.s | ->\n\nOptions:\n", args[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	var src []byte
	var err error
	if fs.Arg(0) == "-" {
		src, err = ioutil.ReadAll(os.Stdin)
	} else {
		src, err = ioutil.ReadFile(fs.Arg(0))
	}
	if err != nil {
		cmd.PrintError(errors.WithStack(err))
		os.Exit(1)
	}
	exe, code, err := Build(string(src), Options{Base: uint32(*base), Bss: uint32(*bss)})
	if err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
	if *dis {
		listing, err := cpu.NewCapstr().Listing(code, uint64(*base))
		if err != nil {
			cmd.PrintError(err)
			os.Exit(1)
		}
		fmt.Println(listing)
	}
	if err := ioutil.WriteFile(*out, exe, 0755); err != nil {
		cmd.PrintError(errors.WithStack(err))
		os.Exit(1)
	}
}

func init() { cmd.Register("mkprog", "assemble a user program into an executable", Main) }
