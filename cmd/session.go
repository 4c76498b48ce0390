package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/ebu/cpa-go/internal/cli"
	"github.com/ebu/cpa-go/internal/config"
	"github.com/ebu/cpa-go/internal/metrics"
	"github.com/ebu/cpa-go/internal/securestore"
	"github.com/ebu/cpa-go/pkg/cpa"
	"github.com/ebu/cpa-go/pkg/logging"
)

// session bundles what a command needs to work with tokens.
type session struct {
	cfg       config.Config
	store     securestore.Store
	tokens    *cpa.TokenStore
	provider  *cpa.Provider
	approvals *cli.ApprovalPrinter
	metrics   *metrics.Registry

	// changes receives a value when another process changed a file store.
	changes       chan struct{}
	metricsServer *http.Server
}

// openSession loads the configuration and opens the token store. The
// provider is only created when withProvider is set.
func openSession(cmd *cobra.Command, withProvider bool) (*session, error) {
	cfg, err := cli.LoadConfig(&globalFlags)
	if err != nil {
		return nil, err
	}
	if err := cli.InitLogging(cfg.Logging, cmd.ErrOrStderr()); err != nil {
		return nil, err
	}

	changes := make(chan struct{}, 1)
	store, err := cli.OpenStore(cfg, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		store:   store,
		tokens:  cpa.NewTokenStore(store, time.Now),
		changes: changes,
	}
	if !withProvider {
		return s, nil
	}

	s.metrics = metrics.NewRegistry()
	s.approvals = cli.NewApprovalPrinter(cmd.ErrOrStderr(), globalFlags.Quiet)
	s.provider, err = cli.NewProvider(cfg, store,
		cpa.WithObserver(s.metrics.Observer()),
		cpa.WithApprovalHandler(s.approvals.Handle),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cpa.SetDefault(s.provider)

	if cfg.Metrics.Listen != "" {
		if err := s.serveMetrics(cfg.Metrics.Listen); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.metricsServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "Metrics server stopped")
		}
	}()
	logging.Debug("Metrics", "Serving metrics on %s", ln.Addr())
	return nil
}

// Close releases the provider, the metrics listener and the store.
func (s *session) Close() error {
	var errs []error
	if s.provider != nil {
		if cpa.Default() == s.provider {
			cpa.SetDefault(nil)
		}
		errs = append(errs, s.provider.Close())
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.metricsServer.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
