package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mkos/mirror-cache/internal/cache"
	"github.com/mkos/mirror-cache/internal/logging"
	"github.com/mkos/mirror-cache/internal/metrics"
	"github.com/mkos/mirror-cache/internal/server"
)

const (
	headerCache = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
	actionProxy = "proxy"
)

// Options 汇总 Handler 的依赖；Metrics 可以为 nil。
type Options struct {
	Fetcher        *Fetcher
	Store          cache.Store
	Policy         cache.Policy
	Logger         *logrus.Logger
	Metrics        *metrics.Recorder
	CoalesceMisses bool
}

// Handler 负责 orchestrate “缓存命中 → 回源 → 按策略写缓存 → 响应” 的全流程。
type Handler struct {
	fetcher  *Fetcher
	store    cache.Store
	writer   cache.PolicyWriter
	logger   *logrus.Logger
	metrics  *metrics.Recorder
	coalesce bool
	inflight singleflight.Group
}

// NewHandler constructs a proxy handler with shared fetcher/logger/store.
func NewHandler(opts Options) *Handler {
	return &Handler{
		fetcher:  opts.Fetcher,
		store:    opts.Store,
		writer:   cache.NewPolicyWriter(opts.Store, opts.Policy),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		coalesce: opts.CoalesceMisses,
	}
}

// requestState 贯穿单次请求，用于日志与指标。
type requestState struct {
	method    string
	path      string
	key       cache.Key
	requestID string
	started   time.Time
}

// Handle 以 origin-form 的 request-target（路径 + 查询串）计算缓存键；命中直接从磁盘响应，否则回源。
func (h *Handler) Handle(c fiber.Ctx) error {
	state := requestState{
		method:    c.Method(),
		path:      requestTarget(c.OriginalURL()),
		requestID: server.RequestID(c),
		started:   time.Now(),
	}
	state.key = cache.KeyFor(state.path)
	ctx := requestContext(c)

	if h.store != nil && h.store.Exists(ctx, state.key) {
		err := h.serveCache(ctx, c, state)
		if err == nil {
			return nil
		}
		var readErr *cache.StoreReadError
		if !errors.As(err, &readErr) {
			return h.writeError(c, state, "", err)
		}
		// 条目在 Exists 与读取之间被替换或删除，按 miss 处理。
		h.logger.WithError(err).WithField("cache_key", state.key.String()).Warn("cache_read_failed")
	}

	if state.method == fiber.MethodHead {
		return h.forwardHead(ctx, c, state)
	}
	return h.forwardGet(ctx, c, state)
}

func (h *Handler) serveCache(ctx context.Context, c fiber.Ctx, state requestState) error {
	if state.method == fiber.MethodHead {
		entry, err := h.store.Stat(ctx, state.key)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, entry.Metadata.ContentType)
		c.Response().Header.SetContentLength(int(entry.SizeBytes))
		c.Set(headerCache, cacheHit)
		c.Status(fiber.StatusOK)
		h.finish(state, cacheHit, entry.Metadata.SourceURL, fiber.StatusOK, 0, nil)
		return nil
	}

	entry, body, err := h.store.Read(ctx, state.key)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, entry.Metadata.ContentType)
	c.Set(headerCache, cacheHit)
	h.finish(state, cacheHit, entry.Metadata.SourceURL, fiber.StatusOK, len(body), nil)
	return c.Status(fiber.StatusOK).Send(body)
}

func (h *Handler) forwardHead(ctx context.Context, c fiber.Ctx, state requestState) error {
	result, err := h.fetcher.FetchHead(ctx, state.path)
	if err != nil {
		return h.writeError(c, state, h.fetcher.cfg.UpstreamURL(state.path), err)
	}
	c.Set(fiber.HeaderContentType, result.ContentType)
	if result.ContentLength >= 0 {
		c.Response().Header.SetContentLength(int(result.ContentLength))
	}
	c.Set(headerCache, cacheMiss)
	c.Status(fiber.StatusOK)
	h.finish(state, cacheMiss, result.URL, fiber.StatusOK, 0, nil)
	return nil
}

func (h *Handler) forwardGet(ctx context.Context, c fiber.Ctx, state requestState) error {
	result, err := h.missGet(ctx, state)
	if err != nil {
		return h.writeError(c, state, h.fetcher.cfg.UpstreamURL(state.path), err)
	}
	c.Set(fiber.HeaderContentType, result.ContentType)
	c.Set(headerCache, cacheMiss)
	h.finish(state, cacheMiss, result.URL, fiber.StatusOK, len(result.Body), nil)
	return c.Status(fiber.StatusOK).Send(result.Body)
}

// missGet 在开启合并时让同一缓存键的并发 miss 共享一次回源与一次写入。
func (h *Handler) missGet(ctx context.Context, state requestState) (*Result, error) {
	if !h.coalesce {
		return h.fetchAndStore(ctx, state)
	}
	value, err, shared := h.inflight.Do(state.key.String(), func() (any, error) {
		return h.fetchAndStore(ctx, state)
	})
	if shared {
		h.logger.WithFields(logrus.Fields{
			"cache_key":  state.key.String(),
			"request_id": state.requestID,
		}).Debug("miss_coalesced")
	}
	if err != nil {
		return nil, err
	}
	return value.(*Result), nil
}

func (h *Handler) fetchAndStore(ctx context.Context, state requestState) (*Result, error) {
	result, err := h.fetcher.FetchGet(ctx, state.path)
	if err != nil {
		return nil, err
	}
	_, stored, err := h.writer.Put(ctx, state.path, state.key, result.Body, cache.Metadata{
		ContentType: result.ContentType,
		SourceURL:   result.URL,
	})
	if stored || err != nil {
		h.metrics.ObserveStoreWrite(err)
	}
	if err != nil {
		return nil, &UnexpectedError{Detail: err.Error(), Err: err}
	}
	return result, nil
}

func (h *Handler) writeError(c fiber.Ctx, state requestState, upstream string, err error) error {
	status, code, message := classifyError(err)
	c.Set(headerCache, cacheMiss)
	c.Status(status)
	var httpErr *UpstreamHTTPError
	if errors.As(err, &httpErr) && httpErr.Reason != "" {
		// 状态行的原因短语与上游保持一致。
		c.Response().Header.SetStatusMessage([]byte(httpErr.Reason))
	}
	h.finish(state, cacheMiss, upstream, status, 0, err)
	return c.JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// finish 输出结构化请求日志并记录指标。
func (h *Handler) finish(state requestState, cacheStatus, upstream string, status, bodyBytes int, err error) {
	h.metrics.ObserveRequest(state.method, cacheStatus, status, bodyBytes)
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields(state.method, state.path, state.key.String(), cacheStatus)
	fields["action"] = actionProxy
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(state.started).Milliseconds()
	if state.requestID != "" {
		fields["request_id"] = state.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
