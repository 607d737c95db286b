// Package crypto returns cryptographically strong random bytes from the
// runtime's native source.
package crypto

import (
	"errors"
	"fmt"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

// MaxBytes is the largest n RandomBytes accepts on either runtime.
const MaxBytes = webhost.MaxRandomValuesBytes

// Random is implemented once per runtime. RandomBytes(0) resolves with an
// empty slice; n < 0 or n > MaxBytes rejects without reaching the native.
type Random interface {
	RandomBytes(n int) *promise.Future[[]byte]
}

// checkLength settles the lengths both runtimes must treat alike. It
// returns nil when n needs a native draw.
func checkLength(n int) *promise.Future[[]byte] {
	switch {
	case n < 0:
		return promise.Rejected[[]byte](hosterr.New(hosterr.KindGeneric, fmt.Sprintf("crypto: negative length %d", n)))
	case n == 0:
		return promise.Resolved([]byte{})
	case n > MaxBytes:
		return promise.Rejected[[]byte](hosterr.New(hosterr.KindGeneric,
			fmt.Sprintf("crypto: length %d exceeds the %d byte limit", n, MaxBytes)))
	}
	return nil
}

// New binds the implementation for cfg.Runtime.
func New(cfg core.Config, host *minihost.Host) (Random, error) {
	switch cfg.Runtime {
	case core.RuntimeWeb:
		return webRandom{}, nil
	case core.RuntimeMiniGame:
		if host == nil {
			return nil, errors.New("crypto: minigame runtime without a host")
		}
		return &miniRandom{
			get: promise.Promisify[minihost.GetRandomValuesOption, minihost.RandomValuesSuccess](host.GetRandomValues),
		}, nil
	}
	return nil, fmt.Errorf("crypto: unknown runtime %v", cfg.Runtime)
}

type webRandom struct{}

func (webRandom) RandomBytes(n int) *promise.Future[[]byte] {
	if f := checkLength(n); f != nil {
		return f
	}
	buf := make([]byte, n)
	if err := webhost.GetRandomValues(buf); err != nil {
		return promise.Rejected[[]byte](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(buf)
}

type miniRandom struct {
	get func(minihost.GetRandomValuesOption) *promise.Future[minihost.RandomValuesSuccess]
}

func (m *miniRandom) RandomBytes(n int) *promise.Future[[]byte] {
	if f := checkLength(n); f != nil {
		return f
	}
	return promise.Map(m.get(minihost.GetRandomValuesOption{Length: n}), func(r minihost.RandomValuesSuccess) []byte {
		return r.RandomValues
	})
}
