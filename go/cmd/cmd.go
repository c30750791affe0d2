package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/cpu/unicorn"
	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/userprog"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models"
)

type KernelCmd struct {
	Config *models.Config

	SetupFlags func() error
	// RunKernel replaces running the command line as the initial process
	RunKernel func(k *userprog.Kernel, cmdline string) (int, error)
	MakeEngine func() userprog.Engine

	NoArgs bool

	Kernel *userprog.Kernel
	Flags  *flag.FlagSet
}

func NewKernelCmd() *KernelCmd {
	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	return &KernelCmd{
		Flags: fs,
		MakeEngine: func() userprog.Engine {
			return unicorn.NewEngine()
		},
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		// calculate column widths
		widths := make([]int, 3)
		for _, f := range frames {
			for i, s := range f {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		for _, f := range frames {
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", f[2])
		}
	}
}

// openFS picks the file system named by the config: a tar image if set,
// otherwise the host directory Root.
func openFS(config *models.Config) (fs.FileSys, error) {
	if config.Image != "" {
		f, err := os.Open(config.Image)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open image")
		}
		defer f.Close()
		return fs.NewTarFS(f)
	}
	return fs.NewHostFS(config.Root)
}

// Run parses argv, boots a kernel and runs the command line in it. The
// result is the process exit status.
func (c *KernelCmd) Run(argv []string) int {
	fs := c.Flags
	strace := fs.Bool("strace", false, "trace syscalls")
	strsize := fs.Int("strsize", 30, "limit -strace'd strings to length")
	tracefile := fs.String("to", "", "binary syscall trace output file")
	tnames := []string{"strace", "strsize", "to"}

	verbose := fs.Bool("v", false, "verbose output")
	root := fs.String("root", ".", "host directory to use as the file system")
	image := fs.String("image", "", "tar archive to load as the file system (overrides -root)")
	pages := fs.Int("pages", 1024, "physical frames")
	procs := fs.Int("procs", 1024, "process limit")
	cache := fs.Int("cache", 16, "parsed executable cache size (0 disables)")
	outfile := fs.String("o", "", "redirect console output to file (default stdout)")

	fs.Usage = func() {
		usage := "Usage: %s [options]"
		if !c.NoArgs {
			usage += " <exe> [args...]"
		}
		usage += "\n\nOptions:\n"
		fmt.Fprintf(os.Stderr, usage, argv[0])
		var flags []*flag.Flag
		var tflags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) {
			for _, name := range tnames {
				if name == f.Name {
					tflags = append(tflags, f)
					return
				}
			}
			flags = append(flags, f)
		})
		models.PrintFlags(os.Stderr, flags)
		fmt.Fprintf(os.Stderr, "\nTrace Options:\n")
		models.PrintFlags(os.Stderr, tflags)
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -root build -strace echo hello world\n", argv[0])
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	fs.Parse(argv[1:])

	args := fs.Args()
	if !c.NoArgs && len(args) < 1 {
		fs.Usage()
		return 1
	}
	if *verbose {
		log.Verbose()
	}

	config := &models.Config{
		Root:      *root,
		Image:     *image,
		Strace:    *strace,
		Strsize:   *strsize,
		TraceFile: *tracefile,
		Verbose:   *verbose,
		Pages:     *pages,
		Procs:     *procs,
		CacheSize: *cache,
	}
	_, config.Color = common.ColorWriter(os.Stderr)
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			PrintError(errors.WithStack(err))
			return 1
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config

	fsys, err := openFS(config)
	if err != nil {
		PrintError(err)
		return 1
	}
	k, err := userprog.New(config, fsys, c.MakeEngine())
	if err != nil {
		PrintError(err)
		return 1
	}
	c.Kernel = k

	var cmdline string
	if len(args) > 0 {
		args[0] = config.PrefixPath(args[0])
		cmdline = strings.Join(args, " ")
	}
	var status int
	if c.RunKernel != nil {
		status, err = c.RunKernel(k, cmdline)
	} else {
		status, err = k.Run(cmdline)
	}
	if serr := k.Shutdown(); err == nil {
		err = serr
	}
	if err != nil {
		if errors.Cause(err) == common.ErrHalt {
			return 0
		}
		if code, ok := common.ExitCode(err); ok {
			return code
		}
		PrintError(err)
		return 1
	}
	return status
}
