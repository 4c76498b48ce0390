package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebu/cpa-go/internal/cli"
	"github.com/ebu/cpa-go/internal/securestore"
	"github.com/ebu/cpa-go/pkg/logging"
)

var (
	statusShowSecret bool
	statusWatch      bool
)

var errWatchNeedsFileStore = errors.New("--watch requires the file store backend")

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List cached tokens",
		Long: `List every token in the local store, including expired ones.

With --watch the list is printed again whenever another process changes
the file store, until interrupted.

Examples:
  cpa status
  cpa status -o json
  cpa status --watch`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	statusCmd.Flags().BoolVar(&statusShowSecret, "show-token", false, "Print full token values instead of a redacted prefix")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Print the list again when the file store changes")
	return statusCmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if statusWatch && s.cfg.Store.Backend != securestore.BackendFile {
		return errWatchNeedsFileStore
	}

	if err := s.printStatus(cmd); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changes:
			if err := s.printStatus(cmd); err != nil {
				return err
			}
		}
	}
}

func (s *session) printStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	views := make([]cli.TokenView, 0, len(keys))
	for _, domain := range keys {
		token, err := s.tokens.Peek(ctx, domain)
		if err != nil {
			logging.Warn("Status", "Skipping unreadable token for %s: %v", domain, err)
			continue
		}
		if token == nil {
			continue
		}
		views = append(views, cli.NewTokenView(token, now, statusShowSecret))
	}
	return cli.WriteTokens(cmd.OutOrStdout(), cli.OutputFormat(globalFlags.OutputFormat), views)
}
