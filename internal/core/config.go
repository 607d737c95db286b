package core

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"
)

// RuntimeEnvVar names the environment variable read by RuntimeFromEnv.
const RuntimeEnvVar = "DUALSTD_RUNTIME"

// Runtime identifies which host the process runs on. It is resolved once at
// startup and handed to every capability constructor.
type Runtime int

const (
	RuntimeWeb Runtime = iota
	RuntimeMiniGame
)

func (r Runtime) String() string {
	switch r {
	case RuntimeWeb:
		return "web"
	case RuntimeMiniGame:
		return "minigame"
	default:
		return fmt.Sprintf("Runtime(%d)", int(r))
	}
}

// ParseRuntime maps a runtime name ("web", "minigame", "mina") to a Runtime.
func ParseRuntime(s string) (Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "web", "browser":
		return RuntimeWeb, nil
	case "minigame", "mina", "minigame-runtime":
		return RuntimeMiniGame, nil
	default:
		return RuntimeWeb, fmt.Errorf("unknown runtime %q", s)
	}
}

// RuntimeFromEnv resolves the runtime from DUALSTD_RUNTIME. An unset
// variable selects the Web runtime.
func RuntimeFromEnv() (Runtime, error) {
	return ParseRuntime(os.Getenv(RuntimeEnvVar))
}

// Config holds the process-wide settings shared by all capability modules.
// Zero values select defaults.
type Config struct {
	Runtime Runtime

	DataDir           string      // root for storage databases and file systems
	TLSClientConfig   *tls.Config // used for wss:// dials and https fetches
	FetchTimeoutSec   int         // per-fetch timeout in seconds
	MaxResponseBytes  int         // max fetch response body size
	MaxMessageBytes   int         // max inbound socket message size
	StorageQuotaBytes int         // storage quota per origin / per game

	// OnUncaught receives values recovered from panicking listeners and
	// callbacks. Nil logs them.
	OnUncaught func(v any)
}

const (
	DefaultFetchTimeoutSec   = 60
	DefaultMaxResponseBytes  = 10 * 1024 * 1024
	DefaultMaxMessageBytes   = 1 << 20
	DefaultStorageQuotaBytes = 10 * 1024 * 1024
)

// FetchTimeout returns the configured fetch timeout or the default.
func (c Config) FetchTimeout() int {
	if c.FetchTimeoutSec <= 0 {
		return DefaultFetchTimeoutSec
	}
	return c.FetchTimeoutSec
}

// ResponseLimit returns the configured response body cap or the default.
func (c Config) ResponseLimit() int64 {
	if c.MaxResponseBytes <= 0 {
		return DefaultMaxResponseBytes
	}
	return int64(c.MaxResponseBytes)
}

// MessageLimit returns the configured inbound message cap or the default.
func (c Config) MessageLimit() int64 {
	if c.MaxMessageBytes <= 0 {
		return DefaultMaxMessageBytes
	}
	return int64(c.MaxMessageBytes)
}

// StorageQuota returns the configured storage quota or the default.
func (c Config) StorageQuota() int {
	if c.StorageQuotaBytes <= 0 {
		return DefaultStorageQuotaBytes
	}
	return c.StorageQuotaBytes
}
