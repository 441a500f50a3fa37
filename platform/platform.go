// Package platform reports which shell the process is running inside. The
// answer is fixed for the lifetime of the process; auth flows query it once
// at construction and never switch afterwards.
package platform

import (
	"os"
	"sync/atomic"
)

// Platform identifies the runtime shell hosting the application.
type Platform string

const (
	// Native is a mobile shell where OAuth callbacks arrive as deep-link
	// app URL events.
	Native Platform = "native"
	// Web is a browser context where OAuth callbacks arrive as full-page
	// redirects.
	Web Platform = "web"
)

// EnvVar is consulted when no platform has been set explicitly.
const EnvVar = "VINOTECA_PLATFORM"

var current atomic.Value

// Set fixes the detected platform. The shell bootstrap should call this
// before any flow is constructed; later calls are ignored so the platform
// cannot change mid-process.
func Set(p Platform) {
	current.CompareAndSwap(nil, p)
}

// Detect returns the current platform. It has no side effects and is safe
// to call from any goroutine. Resolution order: explicit Set, the
// VINOTECA_PLATFORM environment variable, then Web.
func Detect() Platform {
	if p, ok := current.Load().(Platform); ok {
		return p
	}
	return fromEnv()
}

func fromEnv() Platform {
	switch os.Getenv(EnvVar) {
	case string(Native), "android", "ios":
		return Native
	default:
		return Web
	}
}

// IsNative reports whether p is a native mobile shell.
func (p Platform) IsNative() bool { return p == Native }

// IsWeb reports whether p is a browser context.
func (p Platform) IsWeb() bool { return p == Web }
