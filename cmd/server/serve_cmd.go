package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jciecuador/workspace-console/migrations"
	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
	"github.com/jciecuador/workspace-console/modules/requests/infrastructure/directory"
	"github.com/jciecuador/workspace-console/modules/requests/infrastructure/httpsession"
	"github.com/jciecuador/workspace-console/modules/requests/infrastructure/persistence"
	"github.com/jciecuador/workspace-console/modules/requests/presentation/controllers"
	"github.com/jciecuador/workspace-console/modules/requests/services"
	"github.com/jciecuador/workspace-console/pkg/configuration"
	"github.com/jciecuador/workspace-console/pkg/eventbus"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the request API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func buildStore(ctx context.Context, conf *configuration.Configuration) (request.Store, func(), error) {
	switch conf.DataStore {
	case configuration.StoreFile:
		return persistence.NewFileStore(conf.RequestStorePath), func() {}, nil
	case configuration.StorePostgres:
		connString := conf.Database.ConnectionString()
		if err := migrations.Up(connString); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, nil, err
		}
		store := persistence.NewPgStore(pool, conf.ExecutionLockKey, conf.ExecutionLockTTL())
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown DATA_STORE %q", conf.DataStore)
	}
}

func buildGateway(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) (services.DirectoryGateway, error) {
	if !conf.Directory.Configured() {
		logger.Warn("no service account configured; directory execution disabled")
		return directory.Unconfigured{}, nil
	}
	return directory.NewGoogleDirectory(ctx, conf.Directory)
}

func requestLogging(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("request handled")
		})
	}
}

func serve(parent context.Context) error {
	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, conf)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := buildGateway(ctx, conf, logger)
	if err != nil {
		return err
	}

	bus := eventbus.NewEventPublisher(logger)
	services.NewNotificationService(store, bus, logger)
	workflow := services.NewWorkflowService(store, gateway, bus, logger, services.WorkflowOptions{
		BatchSize:        conf.RequestBatchSize,
		AutoExecuteTypes: conf.AutoExecuteTypes(),
	})

	router := mux.NewRouter()
	router.Use(requestLogging(logger))
	controllers.NewRequestsAPIController(workflow, httpsession.HeaderResolver{}).Register(router)
	if conf.Prometheus.Enabled {
		router.Handle(conf.Prometheus.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	srv := &http.Server{
		Addr:              conf.SocketAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", conf.SocketAddress).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
