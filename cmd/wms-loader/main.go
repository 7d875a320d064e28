package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatotools/wms-loader/internal/config"
	"github.com/fatotools/wms-loader/internal/loader"
	"github.com/fatotools/wms-loader/internal/logging"
	"github.com/fatotools/wms-loader/internal/metrics"
	"github.com/fatotools/wms-loader/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (falls back to WMS_LOADER_CONFIG)")
	watchMode := flag.Bool("watch", false, "keep running and reload on folder changes")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wms-loader %s (%s)\n", loader.Version, loader.GitSHA)
		return
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	path := *configPath
	if path == "" {
		path = os.Getenv("WMS_LOADER_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	slog.Info("wms-loader starting",
		"version", loader.Version,
		"git_sha", loader.GitSHA,
		"config", path,
		"folders", len(cfg.Folders))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("")
		go func() {
			slog.Info("metrics server listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	l := loader.New(cfg)
	defer l.Close()

	if cfg.Watch.Enabled || *watchMode {
		if err := watch.New(cfg, l).Run(ctx); err != nil {
			log.Fatalf("[main] watcher failed: %v", err)
		}
		slog.Info("wms-loader stopped cleanly")
		time.Sleep(100 * time.Millisecond)
		return
	}

	results, err := l.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("shutdown before completion")
			return
		}
		log.Fatalf("[main] run failed: %v", err)
	}
	for _, res := range results {
		slog.Info("table loaded",
			"table", res.Table,
			"files_ok", res.FilesOK,
			"files_fail", res.FilesFail,
			"rows", res.Rows,
			"status", res.Status)
	}
}
