package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ebu/cpa-go/internal/cli"
)

var (
	tokenShowSecret bool

	requestDomains []string
	requestUser    bool
	requestTimeout time.Duration
)

// errNoDomain is returned when a token command is run without a domain.
var errNoDomain = errors.New("at least one domain is required")

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Request, inspect and discard tokens",
	}
	tokenCmd.PersistentFlags().BoolVar(&tokenShowSecret, "show-token", false, "Print full token values instead of a redacted prefix")

	tokenCmd.AddCommand(newTokenGetCmd())
	tokenCmd.AddCommand(newTokenRequestCmd())
	tokenCmd.AddCommand(newTokenDiscardCmd())
	return tokenCmd
}

func newTokenGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get DOMAIN",
		Short: "Print the cached token for a domain",
		Long: `Print the valid token cached for a domain without contacting the
authorization provider. Fails when no valid token is cached.

With --quiet only the token value is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: runTokenGet,
	}
}

func runTokenGet(cmd *cobra.Command, args []string) error {
	domain := args[0]

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	token, err := s.tokens.Get(cmd.Context(), domain)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("no valid token cached for %s, run: cpa token request %s", domain, domain)
	}

	if globalFlags.Quiet {
		fmt.Fprintln(cmd.OutOrStdout(), token.Value())
		return nil
	}
	view := cli.NewTokenView(token, time.Now(), tokenShowSecret)
	return cli.WriteTokens(cmd.OutOrStdout(), cli.OutputFormat(globalFlags.OutputFormat), []cli.TokenView{view})
}

func newTokenRequestCmd() *cobra.Command {
	requestCmd := &cobra.Command{
		Use:   "request [DOMAIN...]",
		Short: "Obtain tokens for one or more domains",
		Long: `Obtain tokens for one or more domains, reusing cached tokens while they
are valid. Domains are requested concurrently.

In user mode (--user) the device must be approved: visit the printed
verification URI and enter the user code. Cached client tokens are
replaced by user tokens once approved.

With --quiet only the token values are printed, one per line.

Examples:
  cpa token request news.example
  cpa token request --user --domain news.example --domain radio.example
  curl -H "Authorization: Bearer $(cpa token request -q news.example)" ...`,
		RunE: runTokenRequest,
	}
	requestCmd.Flags().StringArrayVar(&requestDomains, "domain", nil, "Domain to request a token for (repeatable)")
	requestCmd.Flags().BoolVar(&requestUser, "user", false, "Request a user token (requires device approval)")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", 0, "Give up after this duration (default: until the device grant expires)")
	return requestCmd
}

func runTokenRequest(cmd *cobra.Command, args []string) error {
	domains := append(append([]string{}, requestDomains...), args...)
	if len(domains) == 0 {
		return errNoDomain
	}

	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	tokens := make([]cli.TokenView, len(domains))
	values := make([]string, len(domains))

	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range domains {
		i, domain := i, domain
		g.Go(func() error {
			token, err := s.provider.Token(gctx, domain, requestUser)
			s.approvals.Done(domain, err)
			if err != nil {
				return cli.ClassifyTokenError(err, s.provider.BaseURL(), domain)
			}
			tokens[i] = cli.NewTokenView(token, time.Now(), tokenShowSecret)
			values[i] = token.Value()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if globalFlags.Quiet {
		for _, value := range values {
			fmt.Fprintln(cmd.OutOrStdout(), value)
		}
		return nil
	}
	return cli.WriteTokens(cmd.OutOrStdout(), cli.OutputFormat(globalFlags.OutputFormat), tokens)
}

func newTokenDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard DOMAIN...",
		Short: "Delete cached tokens",
		Long: `Delete the tokens cached for the given domains. The next request for a
domain registers the device again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTokenDiscard,
	}
}

func runTokenDiscard(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	// Discard through the provider when one is configured.
	discard := s.tokens.Delete
	if s.cfg.Provider.URL != "" {
		provider, err := cli.NewProvider(s.cfg, s.store)
		if err != nil {
			return err
		}
		defer provider.Close()
		discard = provider.DiscardTokenForDomain
	}

	for _, domain := range args {
		if err := discard(cmd.Context(), domain); err != nil {
			return err
		}
		if !globalFlags.Quiet {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Discarded token for "+domain))
		}
	}
	return nil
}
