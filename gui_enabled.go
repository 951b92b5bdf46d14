//go:build gui

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"pulse/clipboard"
	"pulse/gui"
	"pulse/hotkey"
	"pulse/session"
	"pulse/shutdown"
)

var guiApp *gui.App

// initGUI takes the main thread for the fyne event loop and runs the rest
// of the program on a goroutine.
func initGUI() {
	runtime.LockOSThread()

	runDone := make(chan struct{})
	guiApp = gui.NewApp(func() {
		defer close(runDone)
		run()
		guiApp.Quit()
	})
	if err := gui.Run(guiApp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	<-runDone
}

// runGUI hands the session to the window and blocks until it closes or a
// termination signal arrives.
func runGUI(ctl *session.Controller, mute hotkey.Muter, credential, deviceLine string) {
	guiApp.Bind(gui.Bindings{
		Controller: ctl,
		Mute:       mute,
		Connect: func(ctx context.Context) error {
			return ctl.Connect(ctx, credential)
		},
		Copy:       clipboard.CopyTranscript,
		HasKey:     credential != "",
		DeviceLine: deviceLine,
	})

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	select {
	case <-guiApp.Done():
	case <-ctx.Done():
		guiApp.Quit()
	}
	ctl.Disconnect()
}
