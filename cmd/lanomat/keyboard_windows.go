//go:build windows

package main

import "os"

// listenForKeyboard reads keys without switching the console to raw mode,
// so each key needs Enter
func listenForKeyboard(k *keyboard) (restore func()) {
	go readKeys(os.Stdin, k)
	return func() {}
}
