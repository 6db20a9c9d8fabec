package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/mkos/mirror-cache/internal/cache"
	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/server"
)

// upstreamStub 记录收到的请求，便于断言回源次数与请求头。
type upstreamStub struct {
	server *httptest.Server
	hits   atomic.Int32

	mu        sync.Mutex
	methods   []string
	uris      []string
	userAgent string
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		stub.mu.Lock()
		stub.methods = append(stub.methods, r.Method)
		stub.uris = append(stub.uris, r.URL.RequestURI())
		stub.userAgent = r.Header.Get("User-Agent")
		stub.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) URL() string {
	return s.server.URL
}

func (s *upstreamStub) Hits() int {
	return int(s.hits.Load())
}

func (s *upstreamStub) LastURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uris) == 0 {
		return ""
	}
	return s.uris[len(s.uris)-1]
}

func (s *upstreamStub) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *upstreamStub) UserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userAgent
}

func newTestConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	return &config.Config{
		ListenPort:     8080,
		Upstream:       upstream,
		StoragePath:    t.TempDir(),
		Profile:        "pacman",
		UserAgent:      config.DefaultUserAgent,
		GetTimeout:     config.Duration(2 * time.Second),
		HeadTimeout:    config.Duration(2 * time.Second),
		InitialBackoff: config.Duration(time.Millisecond),
	}
}

type testProxy struct {
	app   *fiber.App
	store cache.Store
	cfg   *config.Config
}

func newTestProxy(t *testing.T, cfg *config.Config) *testProxy {
	t.Helper()
	store, err := cache.NewStore(cfg.StoragePath)
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	return newTestProxyWithStore(t, cfg, store)
}

func newTestProxyWithStore(t *testing.T, cfg *config.Config, store cache.Store) *testProxy {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHandler(Options{
		Fetcher:        NewFetcher(server.NewUpstreamClient(), cfg, nil),
		Store:          store,
		Policy:         cache.NewPolicy(cfg.EffectiveSuffixes()),
		Logger:         logger,
		CoalesceMisses: cfg.CoalesceMisses,
	})
	app, err := server.NewApp(server.AppOptions{Logger: logger, Proxy: handler})
	if err != nil {
		t.Fatalf("app init failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown() })
	return &testProxy{app: app, store: store, cfg: cfg}
}

// do 以 origin-form 发送请求（request-target 仅含路径与查询串）。
func (p *testProxy) do(t *testing.T, method, uri string) (*http.Response, []byte) {
	t.Helper()
	return p.send(t, httptest.NewRequest(method, uri, nil))
}

// doAbsolute 以 absolute-form 发送请求，模拟把缓存当作正向代理使用的客户端。
func (p *testProxy) doAbsolute(t *testing.T, method, uri string) (*http.Response, []byte) {
	t.Helper()
	return p.send(t, httptest.NewRequest(method, "http://mirror.local"+uri, nil))
}

func (p *testProxy) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	method, uri := req.Method, req.URL.String()
	resp, err := p.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, uri, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return resp, body
}
