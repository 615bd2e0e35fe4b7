// Command worker processes a file of documents, one JSON document per
// line, and writes one {id, line, document, report} object per line.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/internal/processor"
	"go.uber.org/zap"
)

func main() {
	in := flag.String("in", "-", "input NDJSON file, - for stdin")
	out := flag.String("out", "-", "output NDJSON file, - for stdout")
	engineCfg := flag.String("config", "config/engine.yaml", "engine config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("cannot initialize logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := config.Load(*engineCfg); err != nil {
		logger.Warn("engine config not loaded, using defaults", zap.String("path", *engineCfg), zap.Error(err))
	}
	engine, err := processor.New(config.C, logger.Named("engine"))
	if err != nil {
		logger.Fatal("cannot build engine", zap.Error(err))
	}

	r, closeIn := openInput(*in, logger)
	defer closeIn()
	w, closeOut := openOutput(*out, logger)
	defer closeOut()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := Run(ctx, r, w, engine, logger)
	logger.Info("worker finished",
		zap.Int("processed", stats.Processed),
		zap.Int("usable", stats.Usable),
		zap.Int("skipped", stats.Skipped))
	if err != nil {
		logger.Error("worker stopped", zap.Error(err))
		closeOut()
		os.Exit(1)
	}
}

func openInput(path string, logger *zap.Logger) (io.Reader, func()) {
	if path == "-" {
		return os.Stdin, func() {}
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Fatal("cannot open input", zap.String("path", path), zap.Error(err))
	}
	return f, func() { _ = f.Close() }
}

func openOutput(path string, logger *zap.Logger) (io.Writer, func()) {
	if path == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Fatal("cannot create output", zap.String("path", path), zap.Error(err))
	}
	return f, func() { _ = f.Close() }
}
