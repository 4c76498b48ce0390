package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebu/cpa-go/internal/cli"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeProviderError indicates the authorization provider failed or rejected the client.
	ExitCodeProviderError = 2
	// ExitCodeApprovalFailed indicates a device grant was denied or expired before approval.
	ExitCodeApprovalFailed = 3
)

// globalFlags are bound to the persistent flags of rootCmd.
var globalFlags cli.CommandFlags

// rootCmd represents the base command for the cpa application.
var rootCmd = &cobra.Command{
	Use:   "cpa",
	Short: "Obtain Cross-Platform Authentication tokens for service domains",
	Long: `cpa registers this device with a Cross-Platform Authentication (CPA)
provider and obtains access tokens for service domains, either anonymously
(client mode) or associated with a user account after the device has been
approved on a second screen (user mode).

Tokens are cached in a local store and reused until they expire.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	// Errors are printed by execute so they share the CLI's formatting.
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := cli.ValidateOutputFormat(globalFlags.OutputFormat)
		return err
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "cpa version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx)
	stop()
	if code != ExitCodeSuccess {
		os.Exit(code)
	}
}

// execute runs the root command, reports a failure on stderr and returns
// the exit code for it.
func execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		rootCmd.PrintErrln(cli.FormatError(err))
	}
	return getExitCode(err)
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var approvalErr *cli.ApprovalTimeoutError
	if errors.As(err, &approvalErr) {
		return ExitCodeApprovalFailed
	}

	var providerErr *cli.ProviderError
	if errors.As(err, &providerErr) {
		return ExitCodeProviderError
	}

	if errors.Is(err, cli.ErrNoProviderURL) {
		return ExitCodeProviderError
	}

	return ExitCodeError
}

func init() {
	cli.RegisterPersistentFlags(rootCmd, &globalFlags)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDevProviderCmd())
}
