// Package sandbox defines the isolated runtime a projected project is mounted
// into, installed and served from.
package sandbox

import (
	"context"

	"sitesmith/internal/mount"
)

// Booter starts a sandbox.
type Booter interface {
	Boot(ctx context.Context) (Session, error)
}

// BooterFunc adapts a function to Booter.
type BooterFunc func(ctx context.Context) (Session, error)

func (f BooterFunc) Boot(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Session is a booted sandbox.
type Session interface {
	// Mount writes the descriptor into the sandbox filesystem root.
	Mount(ctx context.Context, d mount.Descriptor) error
	// Spawn starts a process. ctx bounds startup only; the process lives until
	// it exits or is killed.
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
	// OnServerReady registers fn for server-ready notifications. The returned
	// function unregisters it.
	OnServerReady(fn func(port int, url string)) (cancel func())
}

// Process is a running sandbox process.
type Process interface {
	// Output yields combined output line by line and is closed at exit.
	Output() <-chan string
	// Wait blocks until exit and returns the exit code.
	Wait(ctx context.Context) (int, error)
	Kill() error
}
