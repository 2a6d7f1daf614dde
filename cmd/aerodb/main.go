// Command aerodb runs the AeroDB core as a standalone process, speaking
// one JSON request/response envelope per line over stdio (spec.md §6).
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aerodb/aerodb/internal/config"
	"github.com/aerodb/aerodb/internal/handler"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/recovery"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aerodb",
	Short: "AeroDB — a strict, deterministic, self-hostable document database core",
}

func loadConfig(cfgPath, dataDir string) (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run recovery and serve requests as JSON lines over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		logLevel, _ := cmd.Flags().GetString("log-level")

		cfg, err := loadConfig(cfgPath, dataDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log := logger.Default()
		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		if level != "" {
			log.SetLevel(logger.ParseLevel(level))
		}
		log.Info("starting aerodb: data_dir=%s", cfg.DataDir)

		mgr, err := recovery.Open(cfg, log)
		if err != nil {
			return fmt.Errorf("recovery: %w", err)
		}
		log.Info("recovery complete: replayed=%d records, store size=%s",
			mgr.Stats.Total(), humanize.Bytes(uint64(mgr.Store.Size())))

		h := handler.New(mgr, log)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		done := make(chan struct{})

		go func() {
			defer close(done)
			serveStdio(h, log)
		}()

		select {
		case <-sigCh:
			log.Info("shutdown signal received")
		case <-done:
			log.Info("stdin closed")
		}

		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	},
}

func serveStdio(h *handler.Handler, log *logger.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req handler.Envelope
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("invalid request envelope: %v", err)
			writeLine(out, handler.Response{Status: "error", Code: "AERO_QUERY_INVALID", Message: err.Error()})
			continue
		}
		resp := h.Handle(&req)
		writeLine(out, resp)
	}
}

func writeLine(out *bufio.Writer, resp handler.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	out.Write(b)
	out.WriteByte('\n')
	out.Flush()
}

var explainCmd = &cobra.Command{
	Use:   "explain QUERY_FILE",
	Short: "Run recovery, then print the deterministic plan for one query envelope (no mutation, no execution)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg, err := loadConfig(cfgPath, dataDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log := logger.Default()
		log.SetOutput(os.Stderr)

		mgr, err := recovery.Open(cfg, log)
		if err != nil {
			return fmt.Errorf("recovery: %w", err)
		}
		defer mgr.Shutdown()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read query file: %w", err)
		}
		var req handler.Envelope
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("parse query file: %w", err)
		}
		req.Op = "explain"

		h := handler.New(mgr, log)
		resp := h.Handle(&req)

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if resp.Status != "ok" {
			return fmt.Errorf("explain failed: %s", resp.Message)
		}
		return nil
	},
}

var replayOnlyCmd = &cobra.Command{
	Use:   "replay-only",
	Short: "Run recovery to completion, report stats, and exit without serving requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg, err := loadConfig(cfgPath, dataDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log := logger.Default()
		mgr, err := recovery.Open(cfg, log)
		if err != nil {
			return fmt.Errorf("recovery: %w", err)
		}

		fmt.Printf("schemas:        %d\n", len(mgr.Registry.All()))
		fmt.Printf("indexed fields: %v\n", mgr.Index.IndexedFields())
		fmt.Printf("store size:     %s\n", humanize.Bytes(uint64(mgr.Store.Size())))
		fmt.Printf("wal records replayed: insert=%d update=%d delete=%d mvcc_commit=%d mvcc_version=%d mvcc_gc=%d (total=%d)\n",
			mgr.Stats.Insert, mgr.Stats.Update, mgr.Stats.Delete,
			mgr.Stats.MvccCommit, mgr.Stats.MvccVersion, mgr.Stats.MvccGc, mgr.Stats.Total())

		return mgr.Shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a HuJSON config file (optional)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory override (defaults to config or ./data)")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(replayOnlyCmd)
}
