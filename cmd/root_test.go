package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/ebu/cpa-go/internal/cli"
	"github.com/ebu/cpa-go/pkg/cpa"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "cpa", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.True(t, rootCmd.SilenceErrors)
}

func TestExecuteReportsErrors(t *testing.T) {
	globalFlags = cli.CommandFlags{}
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"status", "-o", "xml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		globalFlags = cli.CommandFlags{}
	})

	code := execute(context.Background())
	assert.Equal(t, ExitCodeError, code)
	assert.Contains(t, errOut.String(), "Error: ")
	assert.Contains(t, errOut.String(), "xml")
	assert.Empty(t, out.String())
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "cpa version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	assert.NoError(t, testCmd.Execute())
	assert.Equal(t, "cpa version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "token", "status", "dev-provider"} {
		assert.True(t, found[expected], "expected subcommand %s to be registered", expected)
	}

	tokenCmd, _, err := rootCmd.Find([]string{"token"})
	assert.NoError(t, err)
	found = make(map[string]bool)
	for _, c := range tokenCmd.Commands() {
		found[c.Name()] = true
	}
	for _, expected := range []string{"get", "request", "discard"} {
		assert.True(t, found[expected], "expected token subcommand %s to be registered", expected)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil",
			err:  nil,
			want: ExitCodeSuccess,
		},
		{
			name: "generic error",
			err:  errors.New("boom"),
			want: ExitCodeError,
		},
		{
			name: "provider error",
			err:  &cli.ProviderError{Endpoint: "http://localhost", Domain: "news.example", Reason: cpa.ErrInvalidClient},
			want: ExitCodeProviderError,
		},
		{
			name: "wrapped provider error",
			err:  fmt.Errorf("request: %w", &cli.ProviderError{Reason: errors.New("connection refused")}),
			want: ExitCodeProviderError,
		},
		{
			name: "missing provider url",
			err:  fmt.Errorf("setup: %w", cli.ErrNoProviderURL),
			want: ExitCodeProviderError,
		},
		{
			name: "approval failed",
			err:  &cli.ApprovalTimeoutError{Domain: "news.example", Reason: errors.New("expired")},
			want: ExitCodeApprovalFailed,
		},
		{
			name: "cancelled",
			err:  cpa.ErrCancelled,
			want: ExitCodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
