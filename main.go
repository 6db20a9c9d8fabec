package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/mkos/mirror-cache/internal/cache"
	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/logging"
	"github.com/mkos/mirror-cache/internal/metrics"
	"github.com/mkos/mirror-cache/internal/proxy"
	"github.com/mkos/mirror-cache/internal/server"
	"github.com/mkos/mirror-cache/internal/server/routes"
	"github.com/mkos/mirror-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	// overrides 只包含命令行上显式给出的配置项，优先级最高。
	overrides map[string]any
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath, opts.overrides)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["profile"] = cfg.ResolveProfile().Key
		fields["upstream"] = cfg.Upstream
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.ListenPort
	fields["upstream"] = cfg.Upstream
	fields["storage_path"] = cfg.StoragePath
	fields["profile"] = cfg.ResolveProfile().Key
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("mirror-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		port       int
		upstream   string
		cacheDir   string
		profileKey string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（可被 MIRROR_CACHE_CONFIG 指定，缺省时仅使用默认值与环境变量）")
	fs.IntVar(&port, "port", config.DefaultListenPort, "监听端口")
	fs.StringVar(&upstream, "upstream", config.DefaultUpstream, "上游镜像基址")
	fs.StringVar(&cacheDir, "cache-dir", config.DefaultStoragePath, "缓存目录")
	fs.StringVar(&profileKey, "profile", "", "包生态 profile（pacman/xbps/apk/apt/slackware）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 未知参数 %v", fs.Args())
	}

	path := os.Getenv(config.EnvPrefix + "_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	// 仅显式传入的标志覆盖配置文件与环境变量，默认值交给 config.Load。
	overrides := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			overrides["ListenPort"] = port
		case "upstream":
			overrides["Upstream"] = upstream
		case "cache-dir":
			overrides["StoragePath"] = cacheDir
		case "profile":
			overrides["Profile"] = profileKey
		}
	})

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		overrides:   overrides,
	}, nil
}

// buildApp 按“磁盘缓存 → 上游客户端 → 代理 Handler → Fiber app”顺序装配，
// 所有请求共享同一份缓存与 http.Client。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	store, err := cache.NewStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.EnableMetrics {
		recorder = metrics.New()
	}

	fetcher := proxy.NewFetcher(server.NewUpstreamClient(), cfg, recorder)
	handler := proxy.NewHandler(proxy.Options{
		Fetcher:        fetcher,
		Store:          store,
		Policy:         cache.NewPolicy(cfg.EffectiveSuffixes()),
		Logger:         logger,
		Metrics:        recorder,
		CoalesceMisses: cfg.CoalesceMisses,
	})

	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Proxy:  handler,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, cfg, recorder)
	return app, nil
}

// startHTTPServer 阻塞直到监听失败或收到 SIGINT/SIGTERM。
func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case sig := <-signals:
			logger.WithFields(logrus.Fields{
				"action": "shutdown",
				"signal": sig.String(),
			}).Info("收到退出信号，停止接受新连接")
			_ = app.Shutdown()
		case <-done:
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
