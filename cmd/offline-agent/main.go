package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"

	offlineagent "github.com/offline-agent/offline-agent"
	"github.com/offline-agent/offline-agent/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	originFlag         string
	addrFlag           string
	versionFlag        string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "offline-agent.yaml", "Configuration file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&addrFlag, "addr", "", "Address to listen on (overrides config)")
	flag.StringVar(&versionFlag, "app-version", "", "Application version (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB path (overrides config; use 'memory' for in-memory)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("build", version).Logger()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if addrFlag != "" {
		config.Listen = addrFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}
	if dbFilenameFlag != "" {
		config.Store.Path = dbFilenameFlag
		if dbFilenameFlag == "memory" {
			config.Store.Backend = "memory"
		}
	}
	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.Version == "" {
		log.Fatal().Msg("Please specify the application version")
	}

	originUrl, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	provider := newProvider(config)
	defer provider.Close()

	agent := offlineagent.CreateAgent(offlineagent.Config{
		Store:       provider,
		OriginURL:   *originUrl,
		Version:     config.Version,
		Manifest:    config.Manifest,
		OfflinePath: config.Offline,
		MaxEntries:  config.Cache.MaxEntries,
		MaxEntryAge: config.Cache.maxAgeDur,
		Logger:      &log.Logger,
	})

	ctx := context.Background()
	if err := agent.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("Installation failed")
	}
	if err := agent.Activate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Activation failed")
	}

	r := chi.NewRouter()
	r.Post("/-/agent/skip-waiting", func(w http.ResponseWriter, req *http.Request) {
		reply, err := agent.HandleMessage(req.Context(), offlineagent.Message{Type: offlineagent.MessageSkipWaiting})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	})
	r.Handle("/*", agent)

	log.Info().Msgf("Serving %s on %s (cache version %s)", config.Origin, config.Listen, config.Version)
	if err := http.ListenAndServe(config.Listen, r); err != nil {
		panic(err)
	}
}

func newProvider(config Config) store.Provider {
	switch config.Store.Backend {
	case "memory":
		return store.NewMemProvider()
	case "leveldb":
		path := config.Store.Path
		if path == "" {
			path = "./data/cache-leveldb"
		}
		provider, err := store.NewLevelDBProvider(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot open leveldb store")
		}
		return provider
	default:
		path := config.Store.Path
		if path == "" {
			path = "cache.db"
		}
		return store.NewSQLiteProvider(path)
	}
}
