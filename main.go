package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/assets"
	"github.com/qr-lecture/devhub/internal/build"
	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/logging"
	"github.com/qr-lecture/devhub/internal/plugin"
	"github.com/qr-lecture/devhub/internal/proxy"
	"github.com/qr-lecture/devhub/internal/server"
	"github.com/qr-lecture/devhub/internal/server/routes"
	"github.com/qr-lecture/devhub/internal/version"
)

const shutdownTimeout = 5 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	profile     string
	mode        string
	checkOnly   bool
	buildOnly   bool
	showVersion bool
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

	cfg, err := loadConfiguration(opts, os.Environ())
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["profile"] = cfg.Profile
		fields["plugins"] = cfg.Plugins
		fields["proxy_rules"] = len(cfg.Proxy)
		fields["defines"] = len(cfg.Defines)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	plugins, err := plugin.ResolveAll(cfg.Plugins)
	if err != nil {
		fmt.Fprintf(stdErr, "加载插件失败: %v\n", err)
		return 1
	}

	// 根文档在这里读取并 bootstrap 一次，之后 dev server 与 build 共用同一个 Site。
	site, err := assets.NewSite(assets.Options{
		Root:    cfg.Root,
		Plugins: plugins,
		Defines: cfg.Defines,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "读取站点失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["profile"] = cfg.Profile
	fields["mode"] = resolveMode(opts)
	fields["root"] = cfg.Root
	fields["mount"] = site.MountOutcome().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.buildOnly {
		builder, err := build.NewBuilder(site, cfg.OutDir, logger)
		if err != nil {
			fmt.Fprintf(stdErr, "初始化构建失败: %v\n", err)
			return 1
		}
		report, err := builder.Run(ctx)
		if err != nil {
			fmt.Fprintf(stdErr, "构建失败: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdOut, "built %d files (%d bytes) into %s\n", report.Files, report.Bytes, report.OutDir)
		return 0
	}

	if err := startHTTPServer(ctx, cfg, site, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// loadConfiguration 先用进程环境解析一次以确定 Root，再叠加 Root 下的 .env 文件重新解析。
func loadConfiguration(opts cliOptions, environ []string) (*config.ServerConfiguration, error) {
	cfg, err := config.Load(opts.configPath, opts.profile, config.EnvFromList(environ))
	if err != nil {
		return nil, err
	}
	env, err := config.LoadEnv(cfg.Root, resolveMode(opts), environ)
	if err != nil {
		return nil, err
	}
	return config.Load(opts.configPath, opts.profile, env)
}

// resolveMode 返回 .env.<mode> 使用的模式名：build 默认 production，其余默认 development。
func resolveMode(opts cliOptions) string {
	if opts.mode != "" {
		return opts.mode
	}
	if opts.buildOnly {
		return "production"
	}
	return "development"
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径与 profile。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("devhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag  string
		profileFlag string
		modeFlag    string
		checkOnly   bool
		buildOnly   bool
		showVer     bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（可选，可被 DEVHUB_CONFIG 提供默认值）")
	fs.StringVar(&profileFlag, "profile", "", "声明 profile: default/proxy/history/define（可被 DEVHUB_PROFILE 提供默认值）")
	fs.StringVar(&modeFlag, "mode", "", "读取 .env.<mode> 时使用的模式名")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&buildOnly, "build", false, "写出构建产物后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 未知参数 %v", fs.Args())
	}

	path := os.Getenv("DEVHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	profile := os.Getenv("DEVHUB_PROFILE")
	if profileFlag != "" {
		profile = profileFlag
	}
	if profile == "" {
		profile = config.ProfileDefault
	}

	return cliOptions{
		configPath:  path,
		profile:     profile,
		mode:        modeFlag,
		checkOnly:   checkOnly,
		buildOnly:   buildOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(ctx context.Context, cfg *config.ServerConfiguration, site *assets.Site, logger *logrus.Logger) error {
	registry, err := server.NewProxyRegistry(cfg)
	if err != nil {
		return err
	}

	httpClient := server.NewUpstreamClient(cfg)
	forwarder := proxy.NewForwarder(proxy.NewHandler(httpClient, logger), logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:          logger,
		Registry:        registry,
		Proxy:           forwarder,
		Site:            site,
		HistoryFallback: cfg.HistoryFallback,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, cfg, registry)

	handler, err := server.NewFrontend(server.FrontendOptions{
		App:       app,
		Registry:  registry,
		WebSocket: proxy.NewWebSocketProxy(cfg, logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"action":      "listen",
		"addr":        listener.Addr().String(),
		"proxy_rules": len(cfg.Proxy),
		"fallback":    cfg.HistoryFallback,
	}).Info("dev server 启动")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(listener)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
