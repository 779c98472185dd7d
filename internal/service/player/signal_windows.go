//go:build windows

package player

import (
	"errors"
	"os"
)

// На Windows нет SIGSTOP: пауза ffplay недоступна.
func suspendProcess(*os.Process) error { return errors.ErrUnsupported }

func continueProcess(*os.Process) error { return errors.ErrUnsupported }
