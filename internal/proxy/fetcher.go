package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mkos/mirror-cache/internal/cache"
	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/metrics"
)

// Result 是一次成功（HTTP 200）回源的结果。HEAD 请求不携带 Body。
type Result struct {
	URL           string
	StatusCode    int
	ContentType   string
	ContentLength int64
	Body          []byte
}

// Fetcher 对配置的上游执行 GET/HEAD，负责超时、User-Agent 与连接错误重试。
type Fetcher struct {
	client         *http.Client
	cfg            *config.Config
	metrics        *metrics.Recorder
	maxRetries     int
	initialBackoff time.Duration
}

// NewFetcher 使用共享 http.Client 构造 Fetcher；recorder 可以为 nil。
func NewFetcher(client *http.Client, cfg *config.Config, recorder *metrics.Recorder) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:         client,
		cfg:            cfg,
		metrics:        recorder,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff.DurationValue(),
	}
}

// FetchGet 拉取完整正文，超时覆盖整个交互（含正文读取）。
func (f *Fetcher) FetchGet(ctx context.Context, requestURI string) (*Result, error) {
	return f.fetch(ctx, http.MethodGet, requestURI, f.cfg.GetTimeout.DurationValue())
}

// FetchHead 只取响应头。
func (f *Fetcher) FetchHead(ctx context.Context, requestURI string) (*Result, error) {
	return f.fetch(ctx, http.MethodHead, requestURI, f.cfg.HeadTimeout.DurationValue())
}

func (f *Fetcher) fetch(ctx context.Context, method, requestURI string, timeout time.Duration) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := f.cfg.UpstreamURL(requestURI)
	started := time.Now()

	operation := func() (*Result, error) {
		res, err := f.attempt(ctx, method, target, timeout)
		if err == nil {
			return res, nil
		}
		var connErr *UpstreamConnectionError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialBackoff
	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.maxRetries+1)),
	)
	f.metrics.ObserveFetch(method, fetchResultLabel(err), time.Since(started))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *Fetcher) attempt(parent context.Context, method, target string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &UnexpectedError{Detail: err.Error(), Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	// 禁止 Transport 自动协商 gzip，保证落盘的是上游原始字节。
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UpstreamConnectionError{Reason: connectionReason(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &UpstreamHTTPError{Code: resp.StatusCode, Reason: statusReason(resp)}
	}

	result := &Result{
		URL:           target,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
	if result.ContentType == "" {
		result.ContentType = cache.DefaultContentType
	}
	if method == http.MethodHead {
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamConnectionError{Reason: connectionReason(err), Err: err}
	}
	result.Body = body
	result.ContentLength = int64(len(body))
	return result, nil
}

// statusReason 从 "404 Not Found" 中取出原因短语，缺失时回退到标准文案。
func statusReason(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

func fetchResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var httpErr *UpstreamHTTPError
	if errors.As(err, &httpErr) {
		return "status"
	}
	var connErr *UpstreamConnectionError
	if errors.As(err, &connErr) {
		return "unreachable"
	}
	return "error"
}
