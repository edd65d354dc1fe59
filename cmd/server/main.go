package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/relaychat/relayd/pkg/datastore"
	"github.com/relaychat/relayd/pkg/logging"
	"github.com/relaychat/relayd/pkg/server"
	"github.com/relaychat/relayd/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	showVersion := flag.Bool("version", false, "Print version and exit")
	configFile := flag.String("config", "", "YAML config file (flags override file values)")
	flag.StringVar(&cfg.ChatAddr, "chat", cfg.ChatAddr, "TCP bind address for the chat protocol")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP bind address for the admin page and /metrics (empty to disable)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory holding the admin page assets")
	flag.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Per-session outbound frame queue capacity")
	flag.DurationVar(&cfg.AuthTimeout, "auth-timeout", cfg.AuthTimeout, "Deadline for a new connection to authenticate")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("relayd " + version.String())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Precedence: explicit flags > config file > defaults. The file is
	// loaded into a separate copy so values only fill in fields whose
	// flags were left unset.
	if *configFile != "" {
		fileCfg := server.DefaultConfig()
		if err := server.LoadConfigFile(*configFile, &fileCfg); err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["chat"] {
			cfg.ChatAddr = fileCfg.ChatAddr
		}
		if !set["http"] {
			cfg.HTTPAddr = fileCfg.HTTPAddr
		}
		if !set["db"] {
			cfg.DBPath = fileCfg.DBPath
		}
		if !set["static"] {
			cfg.StaticDir = fileCfg.StaticDir
		}
		if !set["queue-size"] {
			cfg.QueueSize = fileCfg.QueueSize
		}
		if !set["auth-timeout"] {
			cfg.AuthTimeout = fileCfg.AuthTimeout
		}
		cfg.MaxPayload = fileCfg.MaxPayload
	}

	slog.Info("starting relayd", "version", version.String())

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
