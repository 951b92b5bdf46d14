//go:build !gui

package main

import (
	"fmt"
	"os"

	"pulse/hotkey"
	"pulse/session"
)

// guiApp stays nil without the gui build tag.
var guiApp EventSink

func initGUI() {
	fmt.Fprintln(os.Stderr, "pulse: built without GUI support (rebuild with -tags gui)")
	os.Exit(2)
}

func runGUI(*session.Controller, hotkey.Muter, string, string) {
	panic("pulse: built without GUI support")
}
