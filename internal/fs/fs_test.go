package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

func await[T any](t *testing.T, f *promise.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func both(t *testing.T) map[string]FS {
	t.Helper()
	webCfg := core.Config{Runtime: core.RuntimeWeb, DataDir: t.TempDir()}
	win, err := webhost.NewWindow(webCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = win.Close() })
	web, err := New(webCfg, win, nil)
	require.NoError(t, err)

	miniCfg := core.Config{Runtime: core.RuntimeMiniGame, DataDir: t.TempDir()}
	host := minihost.New(miniCfg)
	t.Cleanup(func() { _ = host.Close() })
	mini, err := New(miniCfg, nil, host)
	require.NoError(t, err)

	return map[string]FS{"web": web, "minigame": mini}
}

func TestFileRoundTrip(t *testing.T) {
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			_, err := await(t, f.Mkdir("saves", false))
			require.NoError(t, err)
			_, err = await(t, f.WriteFile("saves/slot1", []byte("level=3")))
			require.NoError(t, err)

			data, err := await(t, f.ReadFile("saves/slot1"))
			require.NoError(t, err)
			require.Equal(t, "level=3", string(data))

			info, err := await(t, f.Stat("saves/slot1"))
			require.NoError(t, err)
			require.Equal(t, "slot1", info.Name)
			require.Equal(t, int64(7), info.Size)
			require.False(t, info.IsDir)

			dir, err := await(t, f.Stat("saves"))
			require.NoError(t, err)
			require.True(t, dir.IsDir)

			ok, err := await(t, f.Exists("saves/slot1"))
			require.NoError(t, err)
			require.True(t, ok)

			_, err = await(t, f.Remove("saves"))
			require.NoError(t, err)
			ok, err = await(t, f.Exists("saves/slot1"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestMkdirExistingIsOk(t *testing.T) {
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			_, err := await(t, f.Mkdir("cache", false))
			require.NoError(t, err)
			_, err = await(t, f.Mkdir("cache", false))
			require.NoError(t, err)
			_, err = await(t, f.Mkdir("cache", true))
			require.NoError(t, err)
		})
	}
}

func TestMissingPathIsNotFound(t *testing.T) {
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			_, err := await(t, f.ReadFile("nope.txt"))
			require.ErrorIs(t, err, hosterr.ErrNotFound)
			_, err = await(t, f.Stat("nope.txt"))
			require.ErrorIs(t, err, hosterr.ErrNotFound)
			_, err = await(t, f.Remove("nope.txt"))
			require.ErrorIs(t, err, hosterr.ErrNotFound)
			_, err = await(t, f.Mkdir("a/b", false))
			require.ErrorIs(t, err, hosterr.ErrNotFound)
		})
	}
}

func TestPathsStayInSandbox(t *testing.T) {
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			_, err := await(t, f.WriteFile("../../escape.txt", []byte("x")))
			require.NoError(t, err)
			ok, err := await(t, f.Exists("escape.txt"))
			require.NoError(t, err)
			require.True(t, ok, "dot-dot segments should resolve inside the root")
		})
	}
}

func TestUnavailableWithoutDataDir(t *testing.T) {
	cfg := core.Config{Runtime: core.RuntimeWeb}
	win, err := webhost.NewWindow(cfg)
	require.NoError(t, err)
	defer win.Close()
	f, err := New(cfg, win, nil)
	require.NoError(t, err)
	_, err = await(t, f.ReadFile("x"))
	require.ErrorIs(t, err, ErrUnavailable)
}
