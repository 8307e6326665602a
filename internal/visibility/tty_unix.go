//go:build darwin || linux

package visibility

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const controllingTTY = "/dev/tty"

func ttyState() (State, bool) {
	tty, err := os.OpenFile(controllingTTY, os.O_RDWR, 0)
	if err != nil {
		return "", false
	}
	defer func() { _ = tty.Close() }()

	pgid := syscall.Getpgrp()
	if pgid <= 0 {
		return "", false
	}
	current, err := unix.IoctlGetInt(int(tty.Fd()), unix.TIOCGPGRP)
	if err != nil {
		return "", false
	}
	if current == pgid {
		return Foreground, true
	}
	return Background, true
}
