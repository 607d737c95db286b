package webhost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/eventloop"
	"github.com/cryguy/dualstd/internal/hosterr"
)

func domName(err error) string {
	var de *hosterr.DOMException
	if errors.As(err, &de) {
		return de.Name
	}
	return ""
}

func TestNewWebSocketSyntaxErrors(t *testing.T) {
	loop := eventloop.New(nil)
	defer loop.Close()

	tests := []struct {
		url       string
		protocols []string
	}{
		{"http://example.test", nil},
		{"wss://example.test/#frag", nil},
		{"wss://example.test", []string{"a", "a"}},
		{"wss://example.test", []string{""}},
	}
	for _, tt := range tests {
		_, err := NewWebSocket(loop, tt.url, tt.protocols, DialConfig{})
		require.Equal(t, "SyntaxError", domName(err), "NewWebSocket(%q, %v) error = %v", tt.url, tt.protocols, err)
	}
}

func TestWebSocketBinaryTypeDefaultsToBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()
		_ = c.Write(r.Context(), websocket.MessageBinary, []byte{1, 2, 3})
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	loop := eventloop.New(nil)
	defer loop.Close()
	ws, err := NewWebSocket(loop, "ws"+strings.TrimPrefix(srv.URL, "http"), nil, DialConfig{})
	require.NoError(t, err)
	got := make(chan any, 1)
	ws.AddEventListener("message", NewListener(func(ev Event) {
		got <- ev.(MessageEvent).Data
	}))
	require.Equal(t, BinaryTypeBlob, ws.BinaryType())
	ws.SetBinaryType("bogus")
	require.Equal(t, BinaryTypeBlob, ws.BinaryType(), "unknown binary type should be ignored")

	select {
	case data := <-got:
		blob, ok := data.(*Blob)
		require.True(t, ok, "message data = %T, want *Blob", data)
		require.Equal(t, 3, blob.Size())
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
	}
	_ = ws.Close(1000, "")
}

// stalledServer accepts connections but never answers the upgrade, so a
// client stays CONNECTING until it gives up.
func stalledServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketCloseValidation(t *testing.T) {
	srv := stalledServer(t)
	loop := eventloop.New(nil)
	defer loop.Close()
	ws, err := NewWebSocket(loop, "ws"+strings.TrimPrefix(srv.URL, "http"), nil, DialConfig{})
	require.NoError(t, err)
	closed := make(chan CloseEvent, 1)
	ws.AddEventListener("close", NewListener(func(ev Event) { closed <- ev.(CloseEvent) }))

	require.Equal(t, "InvalidStateError", domName(ws.Send("too early")))
	require.Equal(t, "InvalidAccessError", domName(ws.Close(1001, "")))
	require.Equal(t, "SyntaxError", domName(ws.Close(1000, strings.Repeat("r", 124))))
	require.Equal(t, CONNECTING, ws.ReadyState(), "rejected Close changed the state")

	require.NoError(t, ws.Close(1000, ""))
	require.Equal(t, CLOSING, ws.ReadyState())
	select {
	case ev := <-closed:
		require.Equal(t, 1006, ev.Code)
		require.False(t, ev.WasClean)
	case <-time.After(5 * time.Second):
		t.Fatal("no close event after closing a connecting socket")
	}
	require.Equal(t, CLOSED, ws.ReadyState())
}

func TestWebSocketCloseClearsHandshakeTimer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	loop := eventloop.New(nil)
	defer loop.Close()
	ws, err := NewWebSocket(loop, "ws"+strings.TrimPrefix(srv.URL, "http"), nil, DialConfig{})
	require.NoError(t, err)
	opened := make(chan struct{}, 1)
	closed := make(chan CloseEvent, 1)
	ws.AddEventListener("open", NewListener(func(Event) { opened <- struct{}{} }))
	ws.AddEventListener("close", NewListener(func(ev Event) { closed <- ev.(CloseEvent) }))
	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("no open event")
	}

	require.NoError(t, ws.Close(4000, "bye"))
	select {
	case ev := <-closed:
		require.Equal(t, 4000, ev.Code)
		require.True(t, ev.WasClean)
	case <-time.After(5 * time.Second):
		t.Fatal("no close event")
	}

	ws.mu.Lock()
	timer := ws.closeTimer
	ws.mu.Unlock()
	require.NotZero(t, timer)
	loop.ClearTimer(timer) // already cleared by the close; must be a no-op
}

func TestEventTargetRemoveByIdentity(t *testing.T) {
	var target EventTarget
	calls := 0
	l := NewListener(func(Event) { calls++ })
	target.AddEventListener("open", l)
	target.AddEventListener("open", l)
	target.DispatchEvent(OpenEvent{})
	require.Equal(t, 1, calls, "duplicate registration")

	target.RemoveEventListener("open", NewListener(func(Event) {}))
	target.DispatchEvent(OpenEvent{})
	require.Equal(t, 2, calls, "different pointer removed something")

	target.RemoveEventListener("open", l)
	target.DispatchEvent(OpenEvent{})
	require.Equal(t, 2, calls, "listener still called after removal")
}

func TestLocalStoragePersists(t *testing.T) {
	dir := t.TempDir()
	ls, err := OpenLocalStorage(dir, 0)
	require.NoError(t, err)
	require.NoError(t, ls.SetItem("theme", "dark"))
	require.NoError(t, ls.Close())

	ls, err = OpenLocalStorage(dir, 0)
	require.NoError(t, err)
	defer ls.Close()
	v, ok, err := ls.GetItem("theme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dark", v)

	keys, err := ls.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"theme"}, keys)

	_, err = os.Stat(filepath.Join(dir, "localstorage.sqlite3"))
	require.NoError(t, err)
}

func TestLocalStorageQuota(t *testing.T) {
	ls, err := OpenLocalStorage("", 10)
	require.NoError(t, err)
	defer ls.Close()

	require.NoError(t, ls.SetItem("k", "12345"))
	require.Equal(t, "QuotaExceededError", domName(ls.SetItem("k2", "123456789")))
	require.NoError(t, ls.RemoveItem("k"))
	require.NoError(t, ls.SetItem("k2", "1234567"))

	n, err := ls.Length()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAbortSignals(t *testing.T) {
	ctrl := NewAbortController()
	fired := 0
	ctrl.Signal().OnAbort(func() { fired++ })
	ctrl.Abort(nil)
	ctrl.Abort(errors.New("second"))
	require.Equal(t, 1, fired)
	require.Equal(t, "AbortError", domName(ctrl.Signal().Reason()))

	loop := eventloop.New(nil)
	defer loop.Close()
	sig := AbortSignalAny(NewAbortController().Signal(), AbortSignalTimeout(loop, 10*time.Millisecond))
	select {
	case <-sig.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout signal never fired")
	}
	require.Equal(t, "TimeoutError", domName(sig.Reason()))
}

func TestAbortSignalTimeoutRelease(t *testing.T) {
	loop := eventloop.New(nil)
	defer loop.Close()

	sig := AbortSignalTimeout(loop, 20*time.Millisecond)
	sig.release()
	time.Sleep(80 * time.Millisecond)
	require.False(t, sig.Aborted())

	sig = AbortSignalTimeout(loop, time.Hour)
	loop.Close()
	require.False(t, sig.Aborted(), "closing the loop fired the timeout")
}

func newFetcher(t *testing.T) *Fetcher {
	t.Helper()
	loop := eventloop.New(nil)
	t.Cleanup(loop.Close)
	f, err := NewFetcher(loop, nil, 30*time.Second)
	require.NoError(t, err)
	return f
}

func fetchBody(t *testing.T, f *Fetcher, rawURL string, init RequestInit) *Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := f.Fetch(rawURL, init).Await(ctx)
	require.NoError(t, err)
	return resp
}

func TestFetcherClientPerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()
	f := newFetcher(t)

	for _, d := range []time.Duration{time.Second, 2 * time.Second, time.Second} {
		resp := fetchBody(t, f, srv.URL, RequestInit{Timeout: d})
		_, _ = io.ReadAll(resp.Body)
		require.NoError(t, resp.Body.Close())
	}
	require.Equal(t, 2, f.clients.Len())
	for _, d := range []time.Duration{time.Second, 2 * time.Second} {
		c, ok := f.clients.Peek(d)
		require.True(t, ok, "no client for %v", d)
		require.Equal(t, d, c.Transport.(*http.Transport).ResponseHeaderTimeout)
	}

	resp := fetchBody(t, f, srv.URL, RequestInit{})
	_ = resp.Body.Close()
	require.True(t, f.clients.Contains(30*time.Second), "zero timeout should use the fetcher default")
}

func TestFetchBodyCloseStopsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()
	f := newFetcher(t)

	resp := fetchBody(t, f, srv.URL, RequestInit{Timeout: 50 * time.Millisecond})
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(data))
	require.NoError(t, resp.Body.Close())

	time.Sleep(150 * time.Millisecond)
	require.False(t, resp.Body.(*abortableBody).signal.Aborted(), "timeout fired after the body was closed")
}

func TestFileSystemErrors(t *testing.T) {
	fsys, err := OpenFileSystem(t.TempDir())
	require.NoError(t, err)

	_, err = fsys.ReadFile("missing")
	require.Equal(t, "NotFoundError", domName(err))

	require.NoError(t, fsys.Mkdir("d", false))
	err = fsys.Mkdir("d", false)
	require.Equal(t, "InvalidModificationError", domName(err))
	require.True(t, hosterr.IsAlreadyExists(hosterr.From(core.RuntimeWeb, err)))

	require.NoError(t, fsys.WriteFile("d/log", []byte("ab")))
	data, err := fsys.ReadFile("d/log")
	require.NoError(t, err)
	require.Equal(t, "ab", string(data))

	st, err := fsys.Stat("d")
	require.NoError(t, err)
	require.True(t, st.IsDir)
	require.NoError(t, fsys.Remove("d"))
	_, err = fsys.Stat("d")
	require.Equal(t, "NotFoundError", domName(err))
}

func TestGetRandomValuesLimit(t *testing.T) {
	require.NoError(t, GetRandomValues(make([]byte, MaxRandomValuesBytes)))
	require.Equal(t, "QuotaExceededError", domName(GetRandomValues(make([]byte, MaxRandomValuesBytes+1))))
}
