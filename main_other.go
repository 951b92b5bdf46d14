//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// The window takes the main thread itself and runs everything else on
	// a goroutine.
	if wantGUI(os.Args[1:]) {
		initGUI()
		return
	}
	// The hotkey backend needs the OS main thread on macOS.
	mainthread.Init(run)
}
