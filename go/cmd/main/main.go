package main

import (
	"github.com/lunixbochs/userprog/go/cmd"

	_ "github.com/lunixbochs/userprog/go/cmd/run"

	_ "github.com/lunixbochs/userprog/go/cmd/mkprog"
	_ "github.com/lunixbochs/userprog/go/cmd/shell"
	_ "github.com/lunixbochs/userprog/go/cmd/trace"
)

func main() { cmd.Main() }
