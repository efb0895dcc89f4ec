package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"brkdash/config"
	"brkdash/config/database"
	"brkdash/internal/audit"
	handler "brkdash/internal/configdoc"
	"brkdash/internal/configdoc/repository"
	"brkdash/internal/configdoc/service"
	"brkdash/internal/events"
	"brkdash/internal/mirror"
	"brkdash/internal/services"
	"brkdash/pkg/logger"
	"brkdash/router"
	"brkdash/socket"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the dashboard configuration service",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level)
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringP("config", "c", "", "TOML config file (default $BRK_CONFIG_FILE)")
	return cmd
}

// serve wires the optional collaborators from cfg and runs the HTTP server
// until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	repo := repository.NewFileRepository(repository.Paths{
		SetupConfig:   cfg.Paths.SetupConfig,
		CompanyConfig: cfg.Paths.CompanyConfig,
		ArchiveDir:    cfg.Paths.ArchiveDir,
		BackupsDir:    cfg.Paths.BackupsDir,
	})
	logger.Sugar.Infof("Setup config: %s", repo.Paths.SetupConfig)
	logger.Sugar.Infof("Company config: %s", repo.Paths.CompanyConfig)
	logger.Sugar.Infof("Backups: %s", repo.Paths.BackupsDir)

	// Change feed for dashboards, plus NATS when configured.
	hub := socket.NewHub()
	go hub.Run()
	publishers := events.Multi{hub}
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Sugar.Warnf("Events will not reach NATS: %v", err)
		} else {
			publishers = append(publishers, pub)
			logger.Sugar.Infof("Publishing events to %s", cfg.NATS.URL)
		}
	}
	defer publishers.Close()

	opts := service.Options{Publisher: publishers}
	var auditLog handler.AuditLister
	if cfg.Database.URL != "" {
		db, err := database.Connect(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db, audit.Migrations, audit.MigrationsDir); err != nil {
			return err
		}
		auditRepo := audit.NewRepository(db)
		opts.Audit = auditRepo
		auditLog = auditRepo
		logger.Sugar.Info("Audit log enabled")
	}

	if cfg.Mirror.Bucket != "" {
		m, err := mirror.NewS3Mirror(ctx, cfg.Mirror.Bucket, cfg.Mirror.Prefix, cfg.Mirror.Region, cfg.Mirror.Endpoint)
		if err != nil {
			logger.Sugar.Warnf("Backups will not be mirrored: %v", err)
		} else {
			opts.Mirror = m
			logger.Sugar.Infof("Mirroring backups to s3://%s/%s", cfg.Mirror.Bucket, cfg.Mirror.Prefix)
		}
	}

	svc := service.NewConfigService(repo, opts)
	prober := services.NewProber(services.DefaultTargets(
		cfg.Services.JSONScannerURL,
		cfg.Services.ToolManagerURL,
		cfg.Services.PlatesManagerURL,
	), cfg.Services.Timeout)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.Setup(router.Deps{
			Service:        svc,
			Hub:            hub,
			Prober:         prober,
			Audit:          auditLog,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("BRK CNC Dashboard config service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
