package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the flags shared by the cpa commands.
type CommandFlags struct {
	OutputFormat string
	Quiet        bool
	ConfigPath   string
	ProviderURL  string
	Debug        bool
}

// RegisterPersistentFlags registers the shared flags on cmd and binds them to flags.
func RegisterPersistentFlags(cmd *cobra.Command, flags *CommandFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, json, yaml)")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress decoration, print only essential output")
	pf.StringVar(&flags.ConfigPath, "config", "", "Configuration file (default: $CPA_CONFIG or ~/.config/cpa/config.yaml)")
	pf.StringVar(&flags.ProviderURL, "provider", "", "Authorization provider URL (overrides configuration)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
}
