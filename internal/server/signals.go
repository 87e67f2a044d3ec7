package server

import (
	"os"
	"os/signal"
	"syscall"
)

// How the loop should stop.
type terminationMode int32

const (
	terminateNone terminationMode = iota

	// Finish the connection currently being processed, then stop before
	// accepting another.
	terminateSoft

	// Stop immediately, abandoning any in-flight accept wait.
	terminateHard
)

var (
	// Soft termination: finish the in-flight request first.
	softSignal = syscall.SIGUSR1

	// Hard termination and process interrupt.
	hardSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
)

// Owns the daemon's signal dispositions for the lifetime of the event loop.
//
// The disposition table is explicit: arm records every signal it touches
// and disarm resets exactly those, so dispositions never touched are left
// alone. Delivery is converted into termination modes consumed by the
// loop; SIGHUP is ignored outright so that a controlling terminal going
// away never kills a handler mid-request.
type signalController struct {
	ch    chan os.Signal
	table []os.Signal // Signals whose disposition arm installed.
}

func newSignalController() *signalController {
	return &signalController{ch: make(chan os.Signal, 4)}
}

// Installs the loop's signal dispositions.
func (c *signalController) arm() {
	trapped := append([]os.Signal{softSignal}, hardSignals...)
	signal.Notify(c.ch, trapped...)
	signal.Ignore(syscall.SIGHUP)
	c.table = append(trapped, syscall.SIGHUP)
}

// Restores every disposition arm installed. Signals never touched stay at
// their prior behavior.
func (c *signalController) disarm() {
	signal.Stop(c.ch)
	for _, sig := range c.table {
		signal.Reset(sig)
	}
	c.table = nil
}

// Delivered signals, consumed by the loop's relay goroutine.
func (c *signalController) deliveries() <-chan os.Signal {
	return c.ch
}

// Maps a delivered signal to its termination mode.
func modeFor(sig os.Signal) terminationMode {
	if sig == softSignal {
		return terminateSoft
	}
	return terminateHard
}
