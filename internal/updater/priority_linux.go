//go:build linux

package updater

import (
	"golang.org/x/sys/unix"
)

const (
	niceNormal     = 0
	niceBackground = 19
)

// setProcessPriority renices the whole process. Background priority keeps a
// multi-minute download from starving foreground work; normal priority must
// be restored on every exit path of the download.
func setProcessPriority(background bool) error {
	nice := niceNormal
	if background {
		nice = niceBackground
	}
	return unix.Setpriority(unix.PRIO_PROCESS, 0, nice)
}
