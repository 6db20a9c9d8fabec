package proxy

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/metrics"
	"github.com/mkos/mirror-cache/internal/server"
)

func TestFetchGetReturnsBodyAndHeaders(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-zstd")
		_, _ = w.Write([]byte("zstd-bytes"))
	})
	cfg := newTestConfig(t, upstream.URL())
	fetcher := NewFetcher(server.NewUpstreamClient(), cfg, metrics.New())

	res, err := fetcher.FetchGet(context.Background(), "/system/os/x86_64/bash-5.2-1-x86_64.pkg.tar.zst?x=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/x-zstd", res.ContentType)
	require.Equal(t, []byte("zstd-bytes"), res.Body)
	require.EqualValues(t, len("zstd-bytes"), res.ContentLength)
	require.Equal(t, upstream.URL()+"/system/os/x86_64/bash-5.2-1-x86_64.pkg.tar.zst?x=1", res.URL)
	require.Equal(t, "/system/os/x86_64/bash-5.2-1-x86_64.pkg.tar.zst?x=1", upstream.LastURI())
	require.Equal(t, config.DefaultUserAgent, upstream.UserAgent())
}

func TestFetchDefaultsContentType(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte{0x28, 0xb5, 0x2f, 0xfd})
	})
	fetcher := NewFetcher(nil, newTestConfig(t, upstream.URL()), nil)

	res, err := fetcher.FetchGet(context.Background(), "/blob")
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", res.ContentType)
}

func TestFetchHeadSkipsBody(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
	})
	fetcher := NewFetcher(server.NewUpstreamClient(), newTestConfig(t, upstream.URL()), nil)

	res, err := fetcher.FetchHead(context.Background(), "/system/os/x86_64/system.db")
	require.NoError(t, err)
	require.Nil(t, res.Body)
	require.EqualValues(t, 4096, res.ContentLength)
	require.Equal(t, []string{http.MethodHead}, upstream.Methods())
}

func TestFetchNonOKBecomesHTTPError(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	cfg := newTestConfig(t, upstream.URL())
	cfg.MaxRetries = 3
	fetcher := NewFetcher(server.NewUpstreamClient(), cfg, nil)

	_, err := fetcher.FetchGet(context.Background(), "/missing.pkg.tar.zst")
	var httpErr *UpstreamHTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.Code)
	require.Equal(t, "Not Found", httpErr.Reason)
	require.Equal(t, 1, upstream.Hits(), "status errors must not be retried")
}

func TestFetchUnreachableUpstream(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	url := upstream.URL()
	upstream.server.Close()

	fetcher := NewFetcher(server.NewUpstreamClient(), newTestConfig(t, url), nil)
	_, err := fetcher.FetchGet(context.Background(), "/system.db")

	var connErr *UpstreamConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "Upstream error: ")
	require.NotEmpty(t, connErr.Reason)
}

func TestFetchTimeoutIsConnectionError(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	cfg := newTestConfig(t, upstream.URL())
	cfg.GetTimeout = config.Duration(50 * time.Millisecond)
	fetcher := NewFetcher(server.NewUpstreamClient(), cfg, nil)

	_, err := fetcher.FetchGet(context.Background(), "/slow.db")
	var connErr *UpstreamConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "timed out", connErr.Reason)
}

// flakyTransport 前 failures 次直接返回拨号错误，之后委托给真实 Transport。
type flakyTransport struct {
	failures int32
	attempts atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.attempts.Add(1)
	if n <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.next.RoundTrip(req)
}

func TestFetchRetriesConnectionErrors(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	cfg := newTestConfig(t, upstream.URL())
	cfg.MaxRetries = 2

	transport := &flakyTransport{failures: 2, next: server.NewUpstreamClient().Transport}
	fetcher := NewFetcher(&http.Client{Transport: transport}, cfg, nil)

	res, err := fetcher.FetchGet(context.Background(), "/system.db")
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), res.Body)
	require.EqualValues(t, 3, transport.attempts.Load())
}

func TestFetchSingleAttemptByDefault(t *testing.T) {
	cfg := newTestConfig(t, "http://upstream.invalid")
	transport := &flakyTransport{failures: 5, next: http.DefaultTransport}
	fetcher := NewFetcher(&http.Client{Transport: transport}, cfg, nil)

	_, err := fetcher.FetchGet(context.Background(), "/system.db")
	var connErr *UpstreamConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "connection refused", connErr.Reason)
	require.EqualValues(t, 1, transport.attempts.Load())
}

func TestClassifyError(t *testing.T) {
	status, code, msg := classifyError(&UpstreamHTTPError{Code: 403, Reason: "Forbidden"})
	require.Equal(t, 403, status)
	require.Equal(t, "upstream_status", code)
	require.Equal(t, "Forbidden", msg)

	status, code, msg = classifyError(&UpstreamConnectionError{Reason: "no such host"})
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "upstream_unreachable", code)
	require.Equal(t, "Upstream error: no such host", msg)

	status, code, msg = classifyError(errors.New("disk full"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal_error", code)
	require.Equal(t, "disk full", msg)
}
