package models

import "fmt"

// ExitStatus ends a user process. Returning it from a syscall handler or an
// engine hook stops the process with that status.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}

func (e ExitStatus) Code() int {
	return int(e)
}
