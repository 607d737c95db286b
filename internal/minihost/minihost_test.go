package minihost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/promise"
)

func newHost(t *testing.T, cfg core.Config) *Host {
	t.Helper()
	cfg.Runtime = core.RuntimeMiniGame
	h := New(cfg)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// callbacks returns Callbacks that report into a channel: "" on success,
// the error message on failure.
func callbacks[R any]() (core.Callbacks[R], chan string, chan R) {
	outcome := make(chan string, 1)
	values := make(chan R, 1)
	return core.Callbacks[R]{
		Success: func(r R) { values <- r; outcome <- "" },
		Fail:    func(e core.GeneralCallbackResult) { outcome <- e.ErrMsg },
	}, outcome, values
}

func wait[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestStorageCallbacksAndPromiseForm(t *testing.T) {
	h := newHost(t, core.Config{})

	cb, outcome, _ := callbacks[struct{}]()
	require.Nil(t, h.SetStorage(SetStorageOption{Key: "k", Data: "v", Callbacks: cb}))
	require.Equal(t, "", wait(t, outcome))

	getCb, getOutcome, values := callbacks[GetStorageSuccess]()
	h.GetStorage(GetStorageOption{Key: "k", Callbacks: getCb})
	require.Equal(t, "", wait(t, getOutcome))
	require.Equal(t, "v", wait(t, values).Data)

	// Without callbacks the native answers with a future.
	ret := h.GetStorage(GetStorageOption{Key: "missing"})
	f, ok := ret.(*promise.Future[GetStorageSuccess])
	require.True(t, ok, "got %T", ret)
	_, err := f.Await(context.Background())
	require.EqualError(t, err, "getStorage:fail data not found")
}

func TestStorageQuotaMessage(t *testing.T) {
	h := newHost(t, core.Config{StorageQuotaBytes: 1 << 20})
	cb, outcome, _ := callbacks[struct{}]()
	h.SetStorage(SetStorageOption{Key: "big", Data: strings.Repeat("x", 1<<20), Callbacks: cb})
	require.Equal(t, "setStorage:fail exceed storage max size 1MB", wait(t, outcome))

	infoCb, _, info := callbacks[StorageInfo]()
	h.GetStorageInfo(GetStorageInfoOption{Callbacks: infoCb})
	got := wait(t, info)
	require.Empty(t, got.Keys)
	require.Equal(t, 1024, got.LimitSize)
}

func TestFileSystemManagerIsMemoized(t *testing.T) {
	h := newHost(t, core.Config{DataDir: t.TempDir()})
	require.Same(t, h.GetFileSystemManager(), h.GetFileSystemManager())
}

func TestFileSystemManagerErrors(t *testing.T) {
	h := newHost(t, core.Config{DataDir: t.TempDir()})
	m := h.GetFileSystemManager()

	var last core.GeneralCallbackResult
	failed := make(chan struct{}, 1)
	fail := core.Callbacks[struct{}]{Fail: func(r core.GeneralCallbackResult) { last = r; failed <- struct{}{} }}

	m.Access(AccessOption{Path: UserDataPath + "/nope", Callbacks: fail})
	wait(t, failed)
	require.Equal(t, ErrCodeNoSuchFile, last.ErrCode)
	require.Contains(t, last.ErrMsg, "access:fail no such file or directory")

	ok, outcome, _ := callbacks[struct{}]()
	m.Mkdir(MkdirOption{DirPath: UserDataPath + "/d", Callbacks: ok})
	require.Equal(t, "", wait(t, outcome))
	m.Mkdir(MkdirOption{DirPath: UserDataPath + "/d", Callbacks: fail})
	wait(t, failed)
	require.Equal(t, ErrCodeAlreadyExists, last.ErrCode)

	m.WriteFile(WriteFileOption{FilePath: "/etc/passwd", Data: "x", Callbacks: fail})
	wait(t, failed)
	require.Contains(t, last.ErrMsg, "permission denied")

	m.Unlink(UnlinkOption{FilePath: UserDataPath + "/d", Callbacks: fail})
	wait(t, failed)
	require.Contains(t, last.ErrMsg, "operation not permitted")
}

func TestFileSystemUnavailableWithoutDataDir(t *testing.T) {
	h := newHost(t, core.Config{})
	cb, outcome, _ := callbacks[ReadFileSuccess]()
	h.GetFileSystemManager().ReadFile(ReadFileOption{FilePath: UserDataPath + "/x", Callbacks: cb})
	require.Equal(t, "readFile:fail file system unavailable", wait(t, outcome))
}

func TestGetRandomValuesReturnsFuture(t *testing.T) {
	h := newHost(t, core.Config{})
	ret := h.GetRandomValues(GetRandomValuesOption{Length: 16})
	f, ok := ret.(*promise.Future[RandomValuesSuccess])
	require.True(t, ok)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Len(t, v.RandomValues, 16)
}

func TestRequestTimeoutAndAbortMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	h := newHost(t, core.Config{})

	cb, outcome, _ := callbacks[RequestSuccess]()
	h.Request(RequestOption{URL: srv.URL, Timeout: 50, Callbacks: cb})
	require.Equal(t, "request:fail timeout", wait(t, outcome))

	cb, outcome, _ = callbacks[RequestSuccess]()
	task := h.Request(RequestOption{URL: srv.URL, Callbacks: cb})
	time.Sleep(20 * time.Millisecond)
	task.Abort()
	require.Equal(t, "request:fail abort", wait(t, outcome))
}

func TestSocketTaskSingleSlotHandlers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			typ, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			_ = c.WriteMessage(typ, data)
		}
	}))
	defer srv.Close()
	h := newHost(t, core.Config{})

	task := h.ConnectSocket(ConnectSocketOption{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	first := make(chan any, 1)
	second := make(chan any, 1)
	opened := make(chan struct{}, 1)
	task.OnOpen(func(OnOpenResult) { opened <- struct{}{} })
	task.OnMessage(func(r OnMessageResult) { first <- r.Data })
	task.OnMessage(func(r OnMessageResult) { second <- r.Data })
	wait(t, opened)

	sendCb, sent, _ := callbacks[struct{}]()
	task.Send(SendSocketMessageOption{Data: []byte{9, 8}, Callbacks: sendCb})
	require.Equal(t, "", wait(t, sent))
	require.Equal(t, []byte{9, 8}, wait(t, second))
	require.Empty(t, first, "replaced handler still called")

	closed := make(chan OnCloseResult, 1)
	task.OnClose(func(r OnCloseResult) { closed <- r })
	task.Close(CloseSocketOption{Code: 4000, Reason: "done"})
	res := wait(t, closed)
	require.Equal(t, 4000, res.Code)

	badCb, bad, _ := callbacks[struct{}]()
	task.Send(SendSocketMessageOption{Data: "late", Callbacks: badCb})
	require.Equal(t, "sendSocketMessage:fail WebSocket is not connected", wait(t, bad))
}

func TestConnectSocketInvalidURL(t *testing.T) {
	h := newHost(t, core.Config{})
	cb, outcome, _ := callbacks[struct{}]()
	h.ConnectSocket(ConnectSocketOption{URL: "http://x", Callbacks: cb})
	require.Contains(t, wait(t, outcome), "connectSocket:fail invalid url")
}

func TestCallbacksAfterCloseFail(t *testing.T) {
	h := newHost(t, core.Config{})
	require.NoError(t, h.Close())

	cb, outcome, _ := callbacks[struct{}]()
	h.SetStorage(SetStorageOption{Key: "k", Data: "v", Callbacks: cb})
	require.Equal(t, ErrMsgRuntimeClosed, wait(t, outcome))

	ret := h.SetStorage(SetStorageOption{Key: "k", Data: "v"})
	f, ok := ret.(*promise.Future[struct{}])
	require.True(t, ok, "got %T", ret)
	_, err := f.Await(context.Background())
	require.EqualError(t, err, ErrMsgRuntimeClosed)

	rnd := h.GetRandomValues(GetRandomValuesOption{Length: 8}).(*promise.Future[RandomValuesSuccess])
	_, err = rnd.Await(context.Background())
	require.EqualError(t, err, ErrMsgRuntimeClosed)

	failCb, failed, _ := callbacks[struct{}]()
	h.ConnectSocket(ConnectSocketOption{URL: "http://x", Callbacks: failCb})
	require.Contains(t, wait(t, failed), "connectSocket:fail invalid url")
}

func TestSocketWritesFailWhenLoopStops(t *testing.T) {
	h := newHost(t, core.Config{})
	task := &SocketTask{host: h, state: taskClosed, writes: make(chan socketWrite, 4)}

	var outcomes []chan string
	for i := 0; i < 2; i++ {
		cb, outcome, _ := callbacks[struct{}]()
		task.writes <- socketWrite{data: []byte("x"), cb: cb}
		outcomes = append(outcomes, outcome)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.writeLoop(ctx, nil)

	for _, outcome := range outcomes {
		require.Equal(t, errMsgSocketClosed, wait(t, outcome))
	}
	require.Zero(t, len(task.writes))
}
