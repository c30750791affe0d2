package run

import (
	"os"

	"github.com/lunixbochs/userprog/go/cmd"
)

func Main(args []string) {
	os.Exit(cmd.NewKernelCmd().Run(args))
}

func init() { cmd.Register("run", "boot the kernel and run a user program", Main) }
