package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagevitals/internal/config"
	"pagevitals/internal/logger"
	"pagevitals/pkg/api"
	"pagevitals/pkg/model"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		devtools   string
		targets    []string
		addr       string
		logLevel   string
		webhook    string
		sqliteDSN  string
		framework  string
		noStdout   bool
	)
	flagSet := pflag.NewFlagSet("pagevitals", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
	flagSet.StringVar(&devtools, "devtools", "", "DevTools 地址，如 http://127.0.0.1:9222")
	flagSet.StringSliceVarP(&targets, "target", "t", nil, "要附加的页面ID，可重复；为空时附加全部页面")
	flagSet.StringVar(&addr, "addr", "", "HTTP API 监听地址")
	flagSet.StringVar(&logLevel, "log-level", "", "日志级别 debug/info/warn/error")
	flagSet.StringVar(&webhook, "webhook", "", "webhook 投递地址")
	flagSet.StringVar(&sqliteDSN, "sqlite", "", "写入 SQLite 的数据库文件")
	flagSet.StringVar(&framework, "framework", "", "挂接错误钩子的框架全局变量名，off 关闭")
	flagSet.BoolVar(&noStdout, "no-stdout", false, "不向标准输出写 JSON Lines")
	flagSet.BoolP("help", "h", false, "显示帮助")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg := config.NewConfig()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if devtools != "" {
		cfg.DevTools.URL = devtools
	}
	if len(targets) > 0 {
		cfg.DevTools.Targets = targets
	}
	if addr != "" {
		cfg.API.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if webhook != "" {
		cfg.Sinks.Webhook = webhook
	}
	if sqliteDSN != "" {
		cfg.Sinks.Sqlite = true
		cfg.Sqlite.Dsn = sqliteDSN
	}
	if framework != "" {
		cfg.Capture.Framework = framework
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if noStdout {
		cfg.Sinks.Stdout = false
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer, File: cfg.Log.File})
	svc, err := api.NewService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attach(ctx, svc, cfg, log)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewRouter(svc, log.With("component", "api")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API 已启动", "addr", cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("收到退出信号，正在关闭")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// attach 附加配置中的目标，未配置时附加 DevTools 列出的全部页面
func attach(ctx context.Context, svc api.Service, cfg *config.Config, log logger.Logger) {
	ids := make([]model.TargetID, 0, len(cfg.DevTools.Targets))
	for _, t := range cfg.DevTools.Targets {
		ids = append(ids, model.TargetID(t))
	}
	if len(ids) == 0 {
		list, err := svc.ListTargets(ctx)
		if err != nil {
			log.Err(err, "无法列出目标，仅提供 HTTP API", "devtools", cfg.DevTools.URL)
			return
		}
		for _, t := range list {
			ids = append(ids, t.ID)
		}
	}
	for _, id := range ids {
		sid, err := svc.AttachTarget(ctx, id)
		if err != nil {
			log.Err(err, "附加目标失败", "target", string(id))
			continue
		}
		log.Info("开始采集", "target", string(id), "sessionID", string(sid))
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `pagevitals 通过 DevTools 协议采集页面的异常、性能与用户行为。

Usage:
  pagevitals [flags]

Flags:
%s`, flagSet.FlagUsages())
}
