package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pbxbridge/internal/ami"
	"pbxbridge/internal/config"
	"pbxbridge/internal/dial"
	"pbxbridge/internal/domain"
	"pbxbridge/internal/httpapi"
	"pbxbridge/internal/hub"
	"pbxbridge/internal/metrics"
	"pbxbridge/internal/mqtt"
	"pbxbridge/internal/pbx"
	"pbxbridge/internal/router"
	"pbxbridge/internal/store"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	logger := setupLogging(cfg, *logLevel)
	logger.Info().
		Str("version", version).
		Str("mode", string(cfg.Mode)).
		Msg("Starting PBX bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.DSN == "" {
		logger.Fatal().Msg("database.dsn is required")
	}
	pool, err := store.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	st := store.NewPostgres(pool)

	m := metrics.New()
	h := hub.New(logger)
	rt := router.New(h, m, logger)

	registry := pbx.NewRegistry(cfg.Dial.ChannelPrefix, st.SaveDetectedVersion, logger)

	listener := ami.NewListener(ami.ListenerConfig{
		Sink:            rt,
		Resolver:        rt,
		Agents:          st,
		OutboundMarker:  cfg.Dial.OutboundContext,
		CampaignVarName: cfg.Dial.CampaignVar,
		Logger:          logger,
	})

	provider := ami.NewProvider(func() *ami.Manager {
		return ami.NewManager(ami.ManagerConfig{
			Transport:   &ami.TCPTransport{Addr: cfg.AMI.Addr(), Timeout: 10 * time.Second},
			Username:    cfg.AMI.User,
			Secret:      cfg.AMI.Secret,
			OnEvent:     listener.HandleEvent,
			OnReconnect: m.IncReconnect,
			Logger:      logger,
		})
	})
	defer provider.Close()

	orchestrator := dial.NewOrchestrator(dial.OrchestratorConfig{
		Mode:   cfg.Mode,
		Agents: st,
		Sites:  st,
		AMIOriginate: func(ctx context.Context, req ami.OriginateRequest) (string, error) {
			mgr, err := provider.Get()
			if err != nil {
				return "", err
			}
			return mgr.Originate(ctx, req)
		},
		AdapterFor: func(pbxCfg domain.PbxConfig) dial.RESTOriginator {
			return registry.ForConfig(pbxCfg)
		},
		DialContext:   cfg.Dial.DialContext,
		ChannelPrefix: cfg.Dial.ChannelPrefix,
		CallerID:      cfg.Dial.DefaultCallerID,
		Metrics:       m,
		Logger:        logger,
	})
	rt.Subscribe("dial", orchestrator)

	if cfg.MQTT.Enabled {
		mirror, err := mqtt.New(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Logger:      logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer mirror.Close()
		rt.Subscribe("mqtt", mirror)
	}

	if err := listener.Preload(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to preload extension map, continuing without it")
	}

	// The event stream connects in the background; the provider keeps
	// retrying until the device accepts the session.
	go connectStream(ctx, provider, logger)

	var server *http.Server
	if cfg.HTTP.Enabled {
		server = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler: httpapi.NewRouter(httpapi.Deps{
				Orchestrator: orchestrator,
				Hub:          h,
				Metrics:      m,
				Health:       func() error { return pool.Ping(ctx) },
				Logger:       logger,
			}),
		}
		go func() {
			logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}

	logger.Info().Msg("Service stopped")
}

func connectStream(ctx context.Context, provider *ami.Provider, logger zerolog.Logger) {
	for {
		_, err := provider.Get()
		if err == nil {
			return
		}
		logger.Error().Err(err).Msg("Event stream connection failed, retrying in 5s")

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func setupLogging(cfg *config.Config, logLevelFlag string) zerolog.Logger {
	levelStr := cfg.Service.LogLevel
	if logLevelFlag != "" {
		levelStr = logLevelFlag
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		logger = zerolog.New(consoleWriter)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().
		Timestamp().
		Str("service", "pbxbridge").
		Logger()
}
