package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/install"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/server"
	"github.com/GriffinCanCode/DeskShell/backend/internal/launcher"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shell"
)

const shutdownTimeout = 30 * time.Second

func main() {
	port := flag.String("port", "", "Command surface port (overrides PORT)")
	external := flag.String("external", "", "External server URL; enables external mode")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *external != "" {
		cfg.External.Enabled = true
		cfg.External.URL = *external
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting desktop shell",
		zap.String("app", cfg.Shell.AppName),
		zap.String("version", cfg.Shell.AppVersion),
		zap.Bool("external", cfg.External.Enabled),
	)

	metrics := monitoring.NewMetrics()
	events := broadcast.NewHub[lifecycle.Event]("events", broadcast.Options{
		Logger:        logger.Component("broadcast"),
		OnCountChange: metrics.SubscriberGauge("events"),
	})
	logs := broadcast.NewHub[string]("logs", broadcast.Options{
		Logger:        logger.Component("broadcast"),
		OnCountChange: metrics.SubscriberGauge("logs"),
	})

	surface := shell.NewHTTPSurface(httpclient.New(httpclient.Options{
		Timeout: 10 * time.Second,
		Retries: 2,
	}), logger.Component("surface"))

	ctrl := lifecycle.NewController(lifecycle.Options{
		Launcher:     newLauncher(cfg, logs, logger),
		Loader:       surface,
		Events:       events,
		Logs:         logs,
		Logger:       logger.Component("lifecycle"),
		Metrics:      metrics,
		External:     cfg.External.Enabled,
		ExternalURL:  cfg.External.URL,
		FallbackURL:  cfg.External.FallbackURL,
		StartTimeout: cfg.Backend.StartTimeout,
	})

	installer := install.NewManager(install.Options{
		Dir:           cfg.Install.Dir,
		Command:       cfg.Install.Command,
		RemoveCommand: cfg.Install.RemoveCommand,
		Executable:    cfg.Backend.Command,
		Version:       cfg.Shell.AppVersion,
		External:      cfg.External.Enabled,
		Logger:        logger.Component("install"),
		Output:        ctrl.Log,
	})

	window := shell.NewWindow(ctrl, logger.Component("window"))
	commands := command.NewSurface(command.Options{
		Controller: ctrl,
		Installer:  installer,
		Notifier:   shell.NewDesktopNotifier(logger.Component("notify")),
		Window:     window,
		Metrics:    metrics,
		Logger:     logger.Component("command"),
		Origins:    command.OriginPolicy{AllowOpaque: cfg.Server.AllowNullOrigin},
		AppName:    cfg.Shell.AppName,
		AppVersion: cfg.Shell.AppVersion,
	})
	tray := shell.New(shell.Options{
		Controller: ctrl,
		Surface:    surface,
		Tray:       shell.NewLogTray(logger.Component("tray")),
		Window:     window,
		Commands:   commands,
		Menu:       shell.MenuOptions{AppName: cfg.Shell.AppName, External: cfg.External.Enabled},
		Logger:     logger.Component("shell"),
	})

	srv := server.NewServer(server.Options{
		Config:     cfg,
		Controller: ctrl,
		Commands:   commands,
		Metrics:    metrics,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	go func() {
		if err := tray.Run(ctx); err != nil {
			logger.Error("Shell stopped", zap.Error(err))
		}
	}()

	if cfg.Install.Watch {
		go func() {
			if err := installer.Watch(ctx, ctrl.PublishInstallStatus); err != nil {
				logger.Warn("Install watcher unavailable", zap.Error(err))
			}
		}()
	}

	if cfg.Backend.AutoStart && !cfg.External.Enabled {
		if installer.IsInstalled(ctx) {
			go ctrl.Start(ctx)
		} else {
			logger.Info("Backend not installed, waiting for install command", zap.String("dir", installer.Dir()))
		}
	}

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case <-window.Done():
		logger.Info("Quit requested")
	case err := <-errChan:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// The backend must be down before the process exits.
	window.Quit(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
	events.Close()
	logs.Close()
	logger.Info("Desktop shell stopped")
}

// newLauncher builds the backend launcher behind the crash-loop guard.
func newLauncher(cfg *config.Config, logs *broadcast.Hub[string], logger *logging.Logger) *launcher.Guarded {
	var inner lifecycle.Launcher
	if cfg.External.Enabled {
		inner = launcher.NewExternal(cfg.External.URL)
	} else {
		inner = launcher.NewProcess(launcher.Options{
			Command:      cfg.Backend.Command,
			Args:         cfg.Backend.Args,
			WorkDir:      cfg.Backend.WorkDir,
			Host:         cfg.Backend.Host,
			Port:         cfg.Backend.Port,
			HealthPath:   cfg.Backend.HealthPath,
			ReadyTimeout: cfg.Backend.ReadyTimeout,
			UsePTY:       cfg.Backend.UsePTY,
			Output:       logs.Publish,
			Logger:       logger.Component("launcher"),
		})
	}

	breakerLog := logger.Component("breaker")
	breaker := resilience.New("launcher", resilience.Settings{
		Timeout:     cfg.Launch.Cooldown,
		ReadyToTrip: resilience.ConsecutiveFailures(cfg.Launch.FailureThreshold),
		OnStateChange: func(name string, from, to resilience.State) {
			breakerLog.Warn("Launch breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return launcher.NewGuarded(inner, breaker)
}
