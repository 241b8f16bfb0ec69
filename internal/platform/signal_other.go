//go:build !linux || !amd64

package platform

// Fault interception is only implemented for linux/amd64, matching the
// x64 backend. Other platforms run with fastmem disabled.

func installSignalHandler() {}

func removeSignalHandler() {}
