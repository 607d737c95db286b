package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "hello "+r.Method)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/chunks", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			_, _ = io.WriteString(w, "part")
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = io.WriteString(bw, "compressed with brotli")
		_ = bw.Close()
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		_, _ = io.WriteString(gw, "compressed with gzip")
		_ = gw.Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func both(t *testing.T) map[string]Fetcher {
	t.Helper()
	return bothWith(t, core.Config{})
}

func bothWith(t *testing.T, cfg core.Config) map[string]Fetcher {
	t.Helper()
	webCfg := cfg
	webCfg.Runtime = core.RuntimeWeb
	win, err := webhost.NewWindow(webCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = win.Close() })
	web, err := New(webCfg, win, nil)
	require.NoError(t, err)

	miniCfg := cfg
	miniCfg.Runtime = core.RuntimeMiniGame
	host := minihost.New(miniCfg)
	t.Cleanup(func() { _ = host.Close() })
	mini, err := New(miniCfg, nil, host)
	require.NoError(t, err)

	return map[string]Fetcher{"web": web, "minigame": mini}
}

func await[T any](t *testing.T, f *promise.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestFetchGet(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			resp, err := await(t, f.Fetch(srv.URL+"/hello", nil).Response())
			require.NoError(t, err)
			require.Equal(t, http.StatusCreated, resp.Status)
			require.Equal(t, "Created", resp.StatusText)
			require.Equal(t, "yes", resp.Headers["x-test"])
			require.Equal(t, "hello GET", string(resp.Body))
		})
	}
}

func TestFetchPostBody(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			resp, err := await(t, f.Fetch(srv.URL+"/echo", &Init{Method: "POST", Body: []byte("payload")}).Response())
			require.NoError(t, err)
			require.Equal(t, "payload", string(resp.Body))
		})
	}
}

func TestFetchAbort(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			task := f.Fetch(srv.URL+"/slow", nil)
			require.False(t, task.Aborted())
			time.Sleep(50 * time.Millisecond)
			task.Abort()
			task.Abort()
			require.True(t, task.Aborted())

			_, err := await(t, task.Response())
			require.ErrorIs(t, err, hosterr.ErrAbort)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			task := f.Fetch(srv.URL+"/slow", &Init{Timeout: 100 * time.Millisecond})
			_, err := await(t, task.Response())
			require.ErrorIs(t, err, hosterr.ErrTimeout)
			require.False(t, task.Aborted())
		})
	}
}

func TestFetchChunks(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			var chunks bytes.Buffer
			resp, err := await(t, f.Fetch(srv.URL+"/chunks", &Init{OnChunk: func(b []byte) {
				mu.Lock()
				chunks.Write(b)
				mu.Unlock()
			}}).Response())
			require.NoError(t, err)
			require.Equal(t, "partpartpart", string(resp.Body))
			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return chunks.String() == "partpartpart"
			}, 5*time.Second, 5*time.Millisecond)
		})
	}
}

func TestWebFetchDecodesContentEncoding(t *testing.T) {
	srv := newTestServer(t)
	f := both(t)["web"]
	resp, err := await(t, f.Fetch(srv.URL+"/br", nil).Response())
	require.NoError(t, err)
	require.Equal(t, "compressed with brotli", string(resp.Body))

	resp, err = await(t, f.Fetch(srv.URL+"/gzip", nil).Response())
	require.NoError(t, err)
	require.Equal(t, "compressed with gzip", string(resp.Body))
}

func TestFetchResponseLimit(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range bothWith(t, core.Config{MaxResponseBytes: 10}) {
		t.Run(name, func(t *testing.T) {
			_, err := await(t, f.Fetch(srv.URL+"/big", nil).Response())
			require.Error(t, err)
			require.Contains(t, err.Error(), "exceeds limit")

			resp, err := await(t, f.Fetch(srv.URL+"/echo", &Init{Method: "POST", Body: []byte("0123456789")}).Response())
			require.NoError(t, err)
			require.Equal(t, "0123456789", string(resp.Body))
		})
	}
}

func TestFetchOnHeaders(t *testing.T) {
	srv := newTestServer(t)
	for name, f := range both(t) {
		t.Run(name, func(t *testing.T) {
			type head struct {
				status  int
				headers map[string]string
			}
			got := make(chan head, 1)
			resp, err := await(t, f.Fetch(srv.URL+"/hello", &Init{OnHeaders: func(status int, h map[string]string) {
				got <- head{status, h}
			}}).Response())
			require.NoError(t, err)
			require.Equal(t, "hello GET", string(resp.Body))

			select {
			case h := <-got:
				require.Equal(t, http.StatusCreated, h.status)
				require.Equal(t, "yes", h.headers["x-test"])
			case <-time.After(5 * time.Second):
				t.Fatal("headers callback not called")
			}
		})
	}
}
