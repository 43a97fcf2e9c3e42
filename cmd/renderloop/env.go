package main

import (
	"io"
	"os"
	"time"

	"github.com/alnah/go-renderloop"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, and the browser process factory.
type Environment struct {
	Now    func() time.Time
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// NewFactory builds the process factory for the worker pool.
	NewFactory func(renderloop.BrowserOptions) renderloop.ProcessFactory
}

// DefaultEnv returns the production environment with headless Chrome workers.
func DefaultEnv() *Environment {
	return &Environment{
		Now:        time.Now,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		NewFactory: renderloop.NewBrowserFactory,
	}
}
