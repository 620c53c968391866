//go:build linux || darwin

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// listenForKeyboard switches the terminal to unbuffered input and handles
// key presses in the background. The returned func restores the terminal.
func listenForKeyboard(k *keyboard) (restore func()) {
	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		// not a terminal
		return func() {}
	}

	newState := *oldState
	// Disable canonical mode (line buffering) and echo. Output processing
	// stays on so \n still returns the carriage.
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &newState); err != nil {
		return func() {}
	}

	go readKeys(os.Stdin, k)
	return func() {
		unix.IoctlSetTermios(fd, ioctlSetTermios, oldState)
	}
}
