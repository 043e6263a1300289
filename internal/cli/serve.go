package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/bootstrap"
	"github.com/agentboard/agentboard/internal/config"
	"github.com/agentboard/agentboard/internal/contextpipeline"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/httpapi"
	"github.com/agentboard/agentboard/internal/llmchain"
	"github.com/agentboard/agentboard/internal/logging"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/specgen"
	"github.com/agentboard/agentboard/internal/store"
	"github.com/agentboard/agentboard/internal/taskrunner"
	"github.com/agentboard/agentboard/internal/ticketlink"

	gogithub "github.com/google/go-github/v82"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start both control loops plus the health & control server",
		Long: `serve starts the Spec Generator Loop and the Task Runner Loop against
the shared board store, bootstraps the Queue/Agent WIP/Review columns if
missing, and exposes the health/control HTTP surface (status, agent
listing, backup export, and the live event stream).`,
		RunE: runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Options{Verbose: verbose, Quiet: quiet, JSON: jsonOut})

	backend, err := store.New(store.Config{
		Mode:      store.Mode(cfg.BoardMode),
		RemoteURL: cfg.BoardURL,
		Token:     cfg.BoardToken,
		Timeout:   cfg.BoardTimeout,
		LocalPath: cfg.BoardPath,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	reg, err := registry.New(cfg.RegistryPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewMemoryPublisher()
	pub := events.NewCLIPublisher(os.Stdout, events.WithInnerPublisher(bus))
	defer pub.Close()

	columnIDs, columnsCreated, err := bootstrap.Ensure(ctx, backend, time.Now)
	if err != nil {
		logger.Warn("failed to bootstrap workflow columns", "error", err)
	} else if columnsCreated {
		pub.Publish(events.NewEvent(events.EventColumnBootstrap, events.GlobalTaskID, nil))
	}

	var primary, fallback *llmchain.Provider
	if cfg.PrimaryAPIKey != "" && cfg.PrimaryBaseURL != "" {
		primary = &llmchain.Provider{ID: "primary", BaseURL: cfg.PrimaryBaseURL, Model: cfg.PrimaryModel, APIKey: cfg.PrimaryAPIKey, Timeout: cfg.PrimaryTimeout}
	}
	if cfg.FallbackAPIKey != "" && cfg.FallbackBaseURL != "" {
		fallback = &llmchain.Provider{ID: "fallback", BaseURL: cfg.FallbackBaseURL, Model: cfg.FallbackModel, APIKey: cfg.FallbackAPIKey, Timeout: cfg.FallbackTimeout}
	}
	chain := llmchain.New(primary, fallback, logger)

	githubClient := &contextpipeline.HTTPGitHubClient{Client: gogithub.NewClient(nil)}
	tickets := ticketlink.New(cfg.JiraToken, cfg.GitLabToken)

	runner := taskrunner.New(taskrunner.Config{
		Backend:        backend,
		Registry:       reg,
		Publisher:      pub,
		Logger:         logger,
		Interval:       cfg.RunnerInterval,
		ConcurrencyCap: cfg.ConcurrencyCap,
		WorkspacesDir:  cfg.WorkspacesDir,
		ResultsDir:     cfg.ResultsDir,
		ColumnIDs:      columnIDs,
	})
	loop := specgen.New(specgen.Config{
		Backend:   backend,
		GitHub:    githubClient,
		Tickets:   tickets,
		Chain:     chain,
		Publisher: pub,
		Logger:    logger,
	})

	runner.Start(ctx)
	defer runner.Stop()
	loop.Start(ctx)
	defer loop.Stop()

	server := httpapi.New(httpapi.Config{
		Addr:           cfg.ListenAddr,
		Logger:         logger,
		Runner:         runner,
		Registry:       reg,
		Backend:        backend,
		Publisher:      pub,
		ConcurrencyCap: cfg.ConcurrencyCap,
		ExportsDir:     cfg.ExportsDir,
		ResultsDir:     cfg.ResultsDir,
	})

	go func() {
		if err := reg.Watch(ctx, logger, pub); err != nil {
			logger.Warn("registry file watcher disabled", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				if err := reg.Reload(); err != nil {
					logger.Warn("registry reload failed, keeping previous registry", "error", err)
				} else {
					logger.Info("agent registry reloaded")
					pub.Publish(events.NewEvent(events.EventRegistryReloaded, events.GlobalTaskID, nil))
				}
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutting down")
				cancel()
				return
			}
		}
	}()

	printf("agentboard serving on %s\n", cfg.ListenAddr)
	err = server.Start(ctx)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
