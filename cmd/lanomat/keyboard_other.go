//go:build !linux && !darwin && !windows

package main

func listenForKeyboard(k *keyboard) (restore func()) {
	return func() {}
}
