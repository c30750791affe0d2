package shell

import (
	"os"

	"github.com/lunixbochs/userprog/go/cmd"
	"github.com/lunixbochs/userprog/go/kernel/userprog"
	"github.com/lunixbochs/userprog/go/ui"
)

func Main(args []string) {
	c := cmd.NewKernelCmd()
	c.NoArgs = true
	c.RunKernel = func(k *userprog.Kernel, cmdline string) (int, error) {
		sh, err := ui.NewShell(k)
		if err != nil {
			return 1, err
		}
		if cmdline != "" {
			sh.Exec("run " + cmdline)
		}
		return 0, sh.Run()
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("shell", "boot the kernel into an interactive shell", Main) }
