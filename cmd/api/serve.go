package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/advance-service/internal/database"
	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/handler"
	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/repository"
	"github.com/Dan9191/advance-service/internal/scheduler"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/spf13/cobra"
)

var (
	serveMigrate      bool
	serveRegisterURLs bool
	serveNoScheduler  bool
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deduction scheduler",
		RunE:  runServe,
	}

	cmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations before serving")
	cmd.Flags().BoolVar(&serveRegisterURLs, "register-urls", false, "register merchant callback URLs with the gateway on start")
	cmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "do not run the daily deduction batch in this process")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg.DBConn)
	if err != nil {
		return err
	}
	defer db.Close()
	if serveMigrate {
		if err := database.MigrateUp(db, logger); err != nil {
			return err
		}
	}

	// Initialize event bus and notifications
	bus := events.NewBus()
	closeNotifications := startNotifications(cfg, db, bus, logger)
	defer closeNotifications()

	// Initialize gateway
	tokens, closeTokens := newTokenStore(ctx, cfg, logger)
	defer closeTokens()
	gateway := mpesa.NewClient(cfg.Mpesa, tokens, logger)
	if serveRegisterURLs {
		if err := gateway.RegisterURLs(ctx); err != nil {
			logger.Warnf("Failed to register merchant URLs: %v", err)
		}
	}

	// Initialize layers
	uowFactory := repository.NewUnitOfWorkFactory(db, bus)
	reconciler := service.NewReconciler(uowFactory, cfg, logger)
	deductions := service.NewDeductionScheduler(uowFactory, cfg, logger)
	h := handler.NewHandler(handler.Deps{
		Applications:  service.NewApplicationService(uowFactory, service.NewEligibilityValidator(cfg), cfg, logger),
		Consensus:     service.NewConsensusTracker(uowFactory, logger),
		Approvals:     service.NewApprovalWorkflow(uowFactory, cfg, logger),
		Payments:      service.NewPaymentService(uowFactory, gateway, reconciler, logger),
		Reconciler:    reconciler,
		Auth:          service.NewAuthService(repository.NewUserRepository(db), logger, cfg),
		Deductions:    deductions,
		Notifications: repository.NewNotificationRepository(db),
	}, logger)

	var sched *scheduler.Scheduler
	if !serveNoScheduler {
		sched, err = scheduler.New(cfg.DeductionCron, cfg.Location, deductions, logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Router(cfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Errorf("Scheduler shutdown failed: %v", err)
		}
	}
	return nil
}
