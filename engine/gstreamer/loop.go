package gstreamer

import (
	"github.com/tinyzimmer/go-glib/glib"
)

// MainLoop runs the GLib default main context so bus watches fire.
type MainLoop struct {
	loop *glib.MainLoop
}

// NewMainLoop creates a main loop on the default context. It does not start it.
func NewMainLoop() *MainLoop {
	return &MainLoop{loop: glib.NewMainLoop(glib.MainContextDefault(), false)}
}

// Run blocks until Quit is called.
func (l *MainLoop) Run() { l.loop.Run() }

// Quit stops a running loop.
func (l *MainLoop) Quit() { l.loop.Quit() }
