// Package dualstd exposes one networking and storage API over two host
// runtimes: a browser-like Web runtime and a MiniGame runtime with
// callback-style natives. The runtime is chosen once, in New, and every
// capability is bound to it there.
package dualstd

import (
	"errors"
	"fmt"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/crypto"
	"github.com/cryguy/dualstd/internal/eventloop"
	"github.com/cryguy/dualstd/internal/fetch"
	"github.com/cryguy/dualstd/internal/fs"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/socket"
	"github.com/cryguy/dualstd/internal/storage"
	"github.com/cryguy/dualstd/internal/webhost"
)

// Std is the set of capabilities bound to one runtime.
type Std struct {
	cfg Config

	win  *webhost.Window
	host *minihost.Host

	socket  socket.Socket
	storage storage.Storage
	fetcher fetch.Fetcher
	fsys    fs.FS
	random  crypto.Random
}

// New starts the host for cfg.Runtime and binds each capability to it.
func New(cfg Config) (*Std, error) {
	s := &Std{cfg: cfg}
	switch cfg.Runtime {
	case core.RuntimeWeb:
		win, err := webhost.NewWindow(cfg)
		if err != nil {
			return nil, fmt.Errorf("starting web runtime: %w", err)
		}
		s.win = win
	case core.RuntimeMiniGame:
		s.host = minihost.New(cfg)
	default:
		return nil, fmt.Errorf("unknown runtime %v", cfg.Runtime)
	}

	var err error
	if s.socket, err = socket.New(cfg, s.win, s.host); err != nil {
		return nil, s.abandon(err)
	}
	if s.storage, err = storage.New(cfg, s.win, s.host); err != nil {
		return nil, s.abandon(err)
	}
	if s.fetcher, err = fetch.New(cfg, s.win, s.host); err != nil {
		return nil, s.abandon(err)
	}
	if s.fsys, err = fs.New(cfg, s.win, s.host); err != nil {
		return nil, s.abandon(err)
	}
	if s.random, err = crypto.New(cfg, s.host); err != nil {
		return nil, s.abandon(err)
	}
	return s, nil
}

// NewFromEnv is New with the runtime taken from DUALSTD_RUNTIME.
func NewFromEnv(cfg Config) (*Std, error) {
	rt, err := core.RuntimeFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Runtime = rt
	return New(cfg)
}

func (s *Std) abandon(err error) error {
	return errors.Join(err, s.Close())
}

// Runtime returns the runtime the capabilities are bound to.
func (s *Std) Runtime() Runtime { return s.cfg.Runtime }

func (s *Std) Socket() Socket   { return s.socket }
func (s *Std) Storage() Storage { return s.storage }
func (s *Std) Fetch() Fetcher   { return s.fetcher }
func (s *Std) FS() FS           { return s.fsys }
func (s *Std) Crypto() Random   { return s.random }

// Loop returns the event loop that delivers events and callbacks.
func (s *Std) Loop() *eventloop.EventLoop {
	if s.win != nil {
		return s.win.Loop
	}
	return s.host.Loop()
}

// Close stops the host. Open connections are not closed first.
func (s *Std) Close() error {
	if s.win != nil {
		return s.win.Close()
	}
	if s.host != nil {
		return s.host.Close()
	}
	return nil
}
