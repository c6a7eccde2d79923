//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func startPTY(*exec.Cmd) (*os.File, error) {
	return nil, errors.New("pty runs are not supported on windows")
}
