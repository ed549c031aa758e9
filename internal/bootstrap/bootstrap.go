// Package bootstrap wires configuration, storage, the voice pipeline and the
// transports into a running service with graceful shutdown.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"voicetask-server-go/internal/platform/cache"
	platformconfig "voicetask-server-go/internal/platform/config"
	platformerrors "voicetask-server-go/internal/platform/errors"
	platformlogging "voicetask-server-go/internal/platform/logging"
	platformobservability "voicetask-server-go/internal/platform/observability"
	platformstorage "voicetask-server-go/internal/platform/storage"

	"voicetask-server-go/internal/domain/assistant"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/session"
	"voicetask-server-go/internal/domain/task"
	openaistt "voicetask-server-go/internal/domain/transcription/adapters/openai"
	transcriptioninter "voicetask-server-go/internal/domain/transcription/inter"
	vadinter "voicetask-server-go/internal/domain/vad/inter"

	httptransport "voicetask-server-go/internal/transport/http"
	httpwebapi "voicetask-server-go/internal/transport/http/webapi"
	"voicetask-server-go/internal/transport/ws"
)

// Options carries the command-line knobs into the bootstrap.
type Options struct {
	ConfigPath string
	UseDotEnv  bool
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	opts                  Options
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	repo                  *platformstorage.TaskRepository
	cache                 *cache.Cache
	bus                   *eventbus.Bus
	tasks                 *task.Service
	reminders             *task.Reminders
	relay                 *assistant.Relay
	engineFactory         session.EngineFactory
}

// Run starts the whole service lifecycle: init steps, transports, and a
// signal-driven graceful shutdown.
func Run(ctx context.Context, opts Options) error {
	state := &appState{opts: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer func() {
		if state.bus != nil {
			state.bus.Shutdown()
		}
		if state.cache != nil {
			if err := state.cache.Close(); err != nil {
				logger.WarnTag("BOOT", "cache did not close cleanly: %v", err)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if stderrors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the initialisation steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open task database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openStorageStep,
		},
		{
			ID:        "cache:connect",
			Title:     "Connect stats cache",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   connectCacheStep,
		},
		{
			ID:        "pipeline:init",
			Title:     "Initialise voice pipeline",
			DependsOn: []string{"storage:open-database", "cache:connect"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
		{
			ID:        "assistant:init",
			Title:     "Initialise assistant relay",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAssistantStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithDotEnv(state.opts.UseDotEnv)
	if state.opts.ConfigPath != "" {
		loader = loader.WithPath(state.opts.ConfigPath)
	}

	config, err := loader.Load()
	if err != nil {
		return err
	}

	state.config = config
	state.configPath = state.opts.ConfigPath
	if state.configPath == "" {
		state.configPath = "defaults+env"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func openStorageStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Storage.Path)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:open-database", "failed to open task database", err)
	}
	state.repo = platformstorage.NewTaskRepository(db)
	state.logger.InfoTag("BOOT", "task database ready at %s", state.config.Storage.Path)
	return nil
}

func connectCacheStep(_ context.Context, state *appState) error {
	if !state.config.Cache.Enabled {
		state.logger.InfoTag("BOOT", "stats cache disabled, reads hit storage")
		return nil
	}

	c, err := cache.New(cache.Config{
		Addr:     state.config.Cache.Addr,
		Password: state.config.Cache.Password,
		DB:       state.config.Cache.DB,
		TTL:      state.config.Cache.TTL,
		Prefix:   "voicetask",
	})
	if err != nil {
		// The cache is an accelerator, not a dependency.
		state.logger.WarnTag("BOOT", "stats cache unavailable, continuing without it: %v", err)
		return nil
	}

	state.cache = c
	state.logger.InfoTag("BOOT", "stats cache connected at %s", state.config.Cache.Addr)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil || state.repo == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"pipeline:init",
			"missing config/logger/storage",
		)
	}

	state.bus = eventbus.New(4)

	state.tasks = task.NewService(state.repo, state.bus, state.cache, state.logger)
	if err := state.tasks.BindVoicePipeline(); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "pipeline:init", "failed to bind task service to the pipeline", err)
	}
	state.reminders = task.NewReminders(state.repo, state.bus, state.logger, 0)

	sttCfg := openaistt.Config{
		APIKey:  state.config.Transcription.APIKey,
		BaseURL: state.config.Transcription.BaseURL,
		Model:   state.config.Transcription.Model,
		Timeout: state.config.Transcription.Timeout,
	}
	logger := state.logger
	state.engineFactory = func() transcriptioninter.Engine {
		return openaistt.New(sttCfg, logger)
	}

	if state.config.Transcription.APIKey == "" {
		state.logger.WarnTag("BOOT", "no transcription api key configured, voice sessions will fail")
	}
	return nil
}

func initAssistantStep(_ context.Context, state *appState) error {
	if !state.config.Assistant.Enabled {
		state.logger.InfoTag("BOOT", "assistant relay disabled")
		return nil
	}

	relay, err := assistant.NewRelay(assistant.Config{
		APIKey:      state.config.Assistant.APIKey,
		BaseURL:     state.config.Assistant.BaseURL,
		Model:       state.config.Assistant.Model,
		MaxTokens:   state.config.Assistant.MaxTokens,
		Temperature: state.config.Assistant.Temperature,
	}, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "assistant:init", "failed to create assistant relay", err)
	}

	state.relay = relay
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if err := startVoiceServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("failed to start voice transport: %w", err)
	}

	if state.config.Web.Enabled {
		if err := startHTTPServer(state, g, groupCtx); err != nil {
			return fmt.Errorf("failed to start http server: %w", err)
		}
	} else {
		state.logger.InfoTag("BOOT", "web server disabled")
	}

	reminders := state.reminders
	g.Go(func() error {
		if err := reminders.Run(groupCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return nil
}

func startVoiceServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	config := state.config
	logger := state.logger

	hub := ws.NewHub(logger)
	router := ws.NewRouter(hub, logger, ws.RouterOptions{})
	server := ws.NewServer(ws.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
	}, router, hub, logger)

	sessionCfg := session.Config{
		FrameInterval:     config.Audio.FrameInterval,
		ChunkInterval:     config.Transcription.ChunkInterval,
		SampleRate:        config.Audio.SampleRate,
		Channels:          config.Audio.Channels,
		Language:          config.Transcription.Language,
		AnalyzerWindow:    config.Audio.FFTWindow,
		AnalyzerSmoothing: config.Audio.Smoothing,
		BasePauseDelay:    config.Session.BasePauseDelay,
		ShortPauseDelay:   config.Session.ShortPauseDelay,
		LongPauseDelay:    config.Session.LongPauseDelay,
		MinPauseDelay:     config.Session.MinPauseDelay,
		ThinkingDisplay:   config.Session.ThinkingDisplay,
		ErrorDisplay:      config.Session.ErrorDisplay,
		MaxSessionLength:  config.Session.MaxSessionLength,
	}

	vadCfg := vadinter.DefaultConfig()
	if config.VAD.Sensitivity > 0 {
		vadCfg.Sensitivity = config.VAD.Sensitivity
	}
	if config.VAD.NoiseWindow > 0 {
		vadCfg.NoiseWindow = config.VAD.NoiseWindow
	}
	if config.VAD.HistoryWindow > 0 {
		vadCfg.HistoryWindow = config.VAD.HistoryWindow
	}
	if config.VAD.SpeechBandLow > 0 {
		vadCfg.SpeechBandLow = config.VAD.SpeechBandLow
	}
	if config.VAD.SpeechBandHigh > 0 {
		vadCfg.SpeechBandHigh = config.VAD.SpeechBandHigh
	}

	server.SetHandlerBuilder(ws.VoiceHandlerBuilder(ws.VoiceDeps{
		Bus:           state.bus,
		Logger:        logger,
		SessionConfig: sessionCfg,
		VADConfig:     vadCfg,
		EngineFactory: state.engineFactory,
	}))

	g.Go(func() error {
		go func() {
			<-groupCtx.Done()
			logger.InfoTag("BOOT", "shutting down voice transport")
			if err := server.Stop(); err != nil {
				logger.ErrorTag("BOOT", "voice transport did not stop cleanly: %v", err)
			}
		}()

		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		}
		return nil
	})

	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:     config,
		Logger:     logger,
		StaticRoot: config.Web.StaticDir,
	})
	if err != nil {
		return err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Message: "not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.File(config.Web.StaticDir + "/index.html")
	})

	webapiService, err := httpwebapi.NewService(config, logger, state.tasks, state.relay)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
	}
	webapiService.Register(groupCtx, httpRouter.API)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "web server listening on http://localhost:%d", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "web server did not stop cleanly: %v", err)
			} else {
				logger.InfoTag("HTTP", "web server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "web server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "received %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out, exiting anyway")
		return stderrors.New("shutdown timed out")
	}
	return nil
}
