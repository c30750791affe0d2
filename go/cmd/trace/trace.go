package trace

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/cmd"
	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/userprog"
	"github.com/lunixbochs/userprog/go/models"
	"github.com/lunixbochs/userprog/go/models/trace"
)

func PrintJson(w io.Writer, tf *trace.Reader) error {
	out, err := json.Marshal(&tf.Header)
	if err != nil {
		return errors.Wrap(err, "error printing header")
	}
	fmt.Fprintf(w, "%s\n", out)
	for {
		rec, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace record")
		}
		out, _ := json.Marshal(rec)
		fmt.Fprintf(w, "%s\n", out)
	}
	return nil
}

// PrintPretty prints records the way -strace does, with raw argument
// words since user memory is not part of the trace.
func PrintPretty(w io.Writer, tf *trace.Reader, color bool) error {
	table := userprog.SyscallTable()
	fmt.Fprintf(w, "# %s\n", tf.Header.Cmdline)
	for {
		rec, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace record")
		}
		name := fmt.Sprintf("syscall_%d", rec.Num)
		if sys := table.Lookup(rec.Num); sys != nil {
			name = sys.Name
		}
		args := make([]string, len(rec.Args))
		for i, v := range rec.Args {
			args[i] = fmt.Sprintf("%#x", v)
		}
		pid := models.Color(fmt.Sprintf("[%d]", rec.Pid), models.ColorPid, color)
		line := fmt.Sprintf("%s %s(%s)", pid, models.Color(name, models.ColorName, color), strings.Join(args, ", "))
		if rec.Killed {
			line += " = " + models.Color("killed", models.ColorError, color)
		} else if rec.HasRet {
			line += fmt.Sprintf(" = %d", int32(rec.Ret))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output trace as line-delimited JSON objects")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <tracefile>\n\nOptions:\n", args[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
	fs.Parse(args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open: %s %v\n", fs.Arg(0), err)
		os.Exit(1)
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening trace file: %v\n", err)
		os.Exit(1)
	}
	defer tf.Close()
	if *jsonFlag {
		err = PrintJson(os.Stdout, tf)
	} else {
		w, color := common.ColorWriter(os.Stdout)
		err = PrintPretty(w, tf, color)
	}
	if err != nil {
		cmd.PrintError(err)
		tf.Close()
		os.Exit(1)
	}
}

func init() { cmd.Register("trace", "print a saved syscall trace file", Main) }
