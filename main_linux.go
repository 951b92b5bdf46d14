//go:build linux

package main

import "os"

func main() {
	if wantGUI(os.Args[1:]) {
		initGUI()
		return
	}
	run()
}
