package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebu/cpa-go/internal/cli"
	"github.com/ebu/cpa-go/internal/config"
	"github.com/ebu/cpa-go/internal/devprovider"
	"github.com/ebu/cpa-go/internal/metrics"
	"github.com/ebu/cpa-go/pkg/logging"
)

var (
	devListen          string
	devDomains         []string
	devInterval        time.Duration
	devGrantLifetime   time.Duration
	devTokenLifetime   time.Duration
	devEnforceInterval bool
	devVerificationURI string
)

func newDevProviderCmd() *cobra.Command {
	devCmd := &cobra.Command{
		Use:   "dev-provider",
		Short: "Run an in-memory CPA authorization provider for development",
		Long: `Run an in-memory CPA authorization provider for local development and
testing. Clients, grants and tokens are lost when it stops.

Pending device grants are approved by posting the user code to /verify:

  curl -X POST http://localhost:8080/verify -d '{"user_code":"BCDF-GHJK","user_name":"alice"}'

Add "deny": true to reject a grant instead. Metrics are served on /metrics.

Examples:
  cpa dev-provider
  cpa dev-provider --listen :9090 --domain news.example=News --domain radio.example=Radio`,
		Args: cobra.NoArgs,
		RunE: runDevProvider,
	}

	f := devCmd.Flags()
	f.StringVar(&devListen, "listen", "127.0.0.1:8080", "Address to listen on")
	f.StringArrayVar(&devDomains, "domain", nil, "Domain to serve as NAME[=DISPLAY NAME] (repeatable, default: any domain)")
	f.DurationVar(&devInterval, "interval", devprovider.DefaultInterval, "Polling interval announced for device grants")
	f.DurationVar(&devGrantLifetime, "grant-lifetime", devprovider.DefaultGrantLifetime, "How long device grants stay valid")
	f.DurationVar(&devTokenLifetime, "token-lifetime", devprovider.DefaultTokenLifetime, "Lifetime of issued tokens")
	f.BoolVar(&devEnforceInterval, "enforce-interval", false, "Answer slow_down to clients polling faster than the interval")
	f.StringVar(&devVerificationURI, "verification-uri", "", "Verification URI announced to devices (default: this server's /verify)")
	return devCmd
}

// parseDomains turns NAME[=DISPLAY NAME] flag values into domains.
func parseDomains(values []string, lifetime time.Duration) ([]devprovider.Domain, error) {
	domains := make([]devprovider.Domain, 0, len(values))
	for _, value := range values {
		name, display, _ := strings.Cut(value, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid domain %q", value)
		}
		if display == "" {
			display = name
		}
		domains = append(domains, devprovider.Domain{
			Name:          name,
			DisplayName:   strings.TrimSpace(display),
			TokenLifetime: lifetime,
		})
	}
	return domains, nil
}

func runDevProvider(cmd *cobra.Command, args []string) error {
	level := "info"
	if globalFlags.Debug {
		level = "debug"
	}
	if err := cli.InitLogging(config.LoggingConfig{Level: level, Format: config.DefaultLogFormat}, cmd.ErrOrStderr()); err != nil {
		return err
	}

	domains, err := parseDomains(devDomains, devTokenLifetime)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	server := devprovider.New(devprovider.Options{
		Domains:         domains,
		Interval:        devInterval,
		GrantLifetime:   devGrantLifetime,
		EnforceInterval: devEnforceInterval,
		VerificationURI: devVerificationURI,
		Metrics:         registry,
		Logger:          logging.Logger("DevProvider"),
	})

	ln, err := net.Listen("tcp", devListen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", devListen, err)
	}

	httpServer := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !globalFlags.Quiet {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Authorization provider listening on http://%s", ln.Addr())))
		if len(domains) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Serving any domain; use --domain to restrict"))
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info("DevProvider", "Shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
