package webhost

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/cryguy/dualstd/internal/eventloop"
	"github.com/cryguy/dualstd/internal/promise"
)

// ForbiddenRequestHeaders are controlled by the transport, as in browsers.
var ForbiddenRequestHeaders = map[string]bool{
	"host":              true,
	"transfer-encoding": true,
	"connection":        true,
	"keep-alive":        true,
	"upgrade":           true,
	"te":                true,
	"trailer":           true,
	"content-length":    true,
}

// RequestInit mirrors the fetch init dictionary.
type RequestInit struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Signal  *AbortSignal
	Timeout time.Duration // 0 uses the fetcher's default
}

// Response is a fetch response whose body has not been read yet. Body is
// already decoded according to Content-Encoding.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	URL        string
	Redirected bool
	Body       io.ReadCloser
}

// Fetcher implements window.fetch over net/http.
type Fetcher struct {
	loop    *eventloop.EventLoop
	tls     *tls.Config
	jar     http.CookieJar
	timeout time.Duration
	clients *lru.Cache[time.Duration, *http.Client]
}

// NewFetcher returns a Fetcher whose requests give up after timeout unless a
// signal fires first.
func NewFetcher(loop *eventloop.EventLoop, tlsConfig *tls.Config, timeout time.Duration) (*Fetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	clients, err := lru.New[time.Duration, *http.Client](16)
	if err != nil {
		return nil, fmt.Errorf("creating client cache: %w", err)
	}
	return &Fetcher{loop: loop, tls: tlsConfig, jar: jar, timeout: timeout, clients: clients}, nil
}

// client returns the cached client for a timeout, building it on first use.
// The timeout bounds the wait for response headers.
func (f *Fetcher) client(timeout time.Duration) *http.Client {
	if c, ok := f.clients.Get(timeout); ok {
		return c
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if f.tls != nil {
		transport.TLSClientConfig = f.tls.Clone()
	}
	transport.ResponseHeaderTimeout = timeout
	c := &http.Client{
		Transport: transport,
		Jar:       f.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 20 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	f.clients.Add(timeout, c)
	return c
}

// Fetch starts a request. The future settles on the loop with the response
// headers; the body streams afterwards and stays tied to init.Signal.
func (f *Fetcher) Fetch(rawURL string, init RequestInit) *promise.Future[*Response] {
	fut := promise.New[*Response]()
	signal := init.Signal
	if signal != nil && signal.Aborted() {
		fut.Reject(signal.Reason())
		return fut
	}

	method := strings.ToUpper(init.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(init.Body) > 0 {
		if method == http.MethodGet || method == http.MethodHead {
			fut.Reject(domError("TypeError", "Request with GET/HEAD method cannot have body."))
			return fut
		}
		body = bytes.NewReader(init.Body)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		cancel()
		fut.Reject(domError("TypeError", "Failed to fetch: "+err.Error()))
		return fut
	}
	for k, v := range init.Headers {
		if ForbiddenRequestHeaders[strings.ToLower(k)] {
			continue
		}
		req.Header.Set(k, v)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	timeout := init.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	timeoutSignal := AbortSignalTimeout(f.loop, timeout)
	effective := AbortSignalAny(signal, timeoutSignal)
	effective.OnAbort(cancel)
	release := func() {
		timeoutSignal.release()
		cancel()
	}

	go func() {
		resp, err := f.client(timeout).Do(req)
		if err != nil {
			reason := effective.Reason()
			release()
			if reason == nil {
				reason = domError("TypeError", "Failed to fetch: "+err.Error())
			}
			f.loop.PostOrRun(func() { fut.Reject(reason) })
			return
		}

		decoded, err := decodeBody(resp)
		if err != nil {
			release()
			_ = resp.Body.Close()
			f.loop.PostOrRun(func() { fut.Reject(domError("TypeError", "Failed to fetch: "+err.Error())) })
			return
		}

		headers := make(map[string]string, len(resp.Header))
		for k, vals := range resp.Header {
			headers[strings.ToLower(k)] = strings.Join(vals, ", ")
		}
		finalURL := rawURL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}
		out := &Response{
			Status:     resp.StatusCode,
			StatusText: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
			Headers:    headers,
			URL:        finalURL,
			Redirected: finalURL != rawURL,
			Body:       &abortableBody{r: decoded, raw: resp.Body, signal: effective, release: release},
		}
		f.loop.PostOrRun(func() { fut.Resolve(out) })
	}()
	return fut
}

// decodeBody undoes Content-Encoding the way a browser does before handing
// the body to script.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		return gzip.NewReader(resp.Body)
	default:
		return resp.Body, nil
	}
}

// abortableBody reports the signal's reason instead of the transport's
// cancellation error once the request was aborted mid-body. Close stops the
// request's timeout.
type abortableBody struct {
	r       io.Reader
	raw     io.Closer
	signal  *AbortSignal
	release func()
}

func (b *abortableBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.signal.Aborted() {
		return n, b.signal.Reason()
	}
	return n, err
}

func (b *abortableBody) Close() error {
	b.release()
	return b.raw.Close()
}
