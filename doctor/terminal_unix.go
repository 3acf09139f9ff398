//go:build !windows

package doctor

import (
	"os"
	"os/exec"
	"syscall"

	"rtcaudio/shutdown"
)

func resetTerminal() {
	exec.Command("stty", "sane").Run()
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		sig := <-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(128 + int(sig.(syscall.Signal)))
	}()
}
