// Command obsbase-cli starts the engine over a config file, registers a
// demonstration stream under system id 1, writes a handful of observations,
// and logs a select/getStatistics round trip — the minimal start -> add ->
// select -> getStatistics -> stop sequence named in SPEC_FULL.md's
// component map.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/INLOpen/obsbase/config"
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/engine"
)

func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})), closer, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	e := engine.New(engine.Options{
		StoragePath:           cfg.Engine.StoragePath,
		MemoryCacheKB:         cfg.Engine.MemoryCacheKB,
		AutoCommitBufferBytes: cfg.Engine.AutoCommitBufferBytes,
		UseCompression:        cfg.Engine.UseCompression,
		StreamIDStrategy:      cfg.Engine.ResolvedStreamIDStrategy(),
		DatabaseID:            cfg.Engine.DatabaseID,
		IndexObsLocation:      cfg.Engine.IndexObsLocation,
		Logger:                logger,
	})
	if err := e.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if err := runDemo(e, logger); err != nil {
		logger.Error("demo run failed", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	logger.Info("obsbase-cli running, press Ctrl+C to exit")
	<-quit

	logger.Info("shutdown signal received")
	if err := e.Stop(); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("obsbase-cli exited gracefully")
}

func runDemo(e *engine.Engine, logger *slog.Logger) error {
	reg, err := e.GetStreams()
	if err != nil {
		return err
	}

	vts := core.NewInstant(1700000000, 0)
	streamID, err := reg.GetOrCreateStream(1, "temperature", vts, nil, "json")
	if err != nil {
		return fmt.Errorf("register stream: %w", err)
	}

	obsStore, err := e.GetObservationStore()
	if err != nil {
		return err
	}

	for i := 0; i < 10; i++ {
		pt := core.NewInstant(1700000100+int64(i), 0)
		fv, err := core.NewFieldValuesFromMap(map[string]interface{}{"celsius": 20.0 + float64(i)})
		if err != nil {
			return err
		}
		obs, err := core.NewObservation(streamID, pt, fv)
		if err != nil {
			return err
		}
		if _, err := obsStore.Add(obs); err != nil {
			return fmt.Errorf("add observation: %w", err)
		}
	}

	results, err := obsStore.SelectEntries(core.ObservationFilter{StreamFilter: []uint64{streamID}})
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	logger.Info("selected observations", "count", len(results))

	stats, err := obsStore.GetStatistics(core.StatsQuery{
		Filter: core.ObservationFilter{StreamFilter: []uint64{streamID}},
	})
	if err != nil {
		return fmt.Errorf("getStatistics: %w", err)
	}
	for _, s := range stats {
		logger.Info("stream statistics", "streamId", s.StreamID, "totalObsCount", s.TotalObsCount)
	}

	return e.Commit()
}
