//go:build unix

package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// ptyRows and ptyCols give build tools a wide terminal so log lines are not
// wrapped mid-message.
const (
	ptyRows = 50
	ptyCols = 240
)

func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return pty.StartWithSize(cmd, &pty.Winsize{Rows: ptyRows, Cols: ptyCols})
}
