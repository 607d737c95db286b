package socket

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/webhost"
)

// ConnectOptions pass through to the active backend.
type ConnectOptions struct {
	Headers   map[string]string
	Protocols []string
}

// Socket opens connections on the runtime it was bound to.
type Socket interface {
	Connect(rawURL string, opts *ConnectOptions) (*Connection, error)
}

// backend creates the native handle for c and wires its events into c.
type backend interface {
	open(c *Connection, rawURL string, opts ConnectOptions) (transport, error)
}

type socket struct {
	b backend
}

// New binds the backend for cfg.Runtime. The host for that runtime must be
// non-nil.
func New(cfg core.Config, win *webhost.Window, host *minihost.Host) (Socket, error) {
	switch cfg.Runtime {
	case core.RuntimeWeb:
		if win == nil {
			return nil, errors.New("socket: web runtime without a window")
		}
		return &socket{b: &webBackend{win: win}}, nil
	case core.RuntimeMiniGame:
		if host == nil {
			return nil, errors.New("socket: minigame runtime without a host")
		}
		return &socket{b: &miniBackend{host: host}}, nil
	}
	return nil, fmt.Errorf("socket: unknown runtime %v", cfg.Runtime)
}

// Connect validates rawURL and starts connecting. It never blocks on the
// network; progress is reported through events. A non-wss URL fails before
// any native call.
func (s *socket) Connect(rawURL string, opts *ConnectOptions) (*Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "wss" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInsecureURL, rawURL)
	}
	var o ConnectOptions
	if opts != nil {
		o = *opts
	}
	c := newConnection(rawURL)
	t, err := s.b.open(c, rawURL, o)
	if err != nil {
		return nil, fmt.Errorf("socket: connect %s: %w", rawURL, err)
	}
	c.bind(t)
	return c, nil
}
