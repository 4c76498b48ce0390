package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/ebu/cpa-go/pkg/cpa"
)

// OutputFormat represents the supported output formats for CLI commands
type OutputFormat string

const (
	// OutputFormatTable displays results in a formatted table (default)
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON displays results as JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML displays results as YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat checks that format is one of the supported formats.
func ValidateOutputFormat(format string) (OutputFormat, error) {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return OutputFormat(format), nil
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
}

// TokenView is the printable form of a stored token.
type TokenView struct {
	Domain     string    `json:"domain" yaml:"domain"`
	DomainName string    `json:"domainName,omitempty" yaml:"domainName,omitempty"`
	Type       string    `json:"type" yaml:"type"`
	UserName   string    `json:"userName,omitempty" yaml:"userName,omitempty"`
	ClientID   string    `json:"clientID" yaml:"clientID"`
	Token      string    `json:"token" yaml:"token"`
	ExpiresAt  time.Time `json:"expiresAt" yaml:"expiresAt"`
	Expired    bool      `json:"expired" yaml:"expired"`
}

// NewTokenView builds the view of token as seen at now. The token value is
// redacted unless showSecret is set.
func NewTokenView(token *cpa.Token, now time.Time, showSecret bool) TokenView {
	value := token.Value()
	if !showSecret {
		value = redact(value)
	}
	return TokenView{
		Domain:     token.Domain(),
		DomainName: token.DomainName(),
		Type:       token.Type().String(),
		UserName:   token.UserName(),
		ClientID:   token.ClientID(),
		Token:      value,
		ExpiresAt:  token.ExpiresAt().UTC(),
		Expired:    token.IsExpired(now),
	}
}

func redact(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// WriteTokens renders views to out in the given format.
func WriteTokens(out io.Writer, format OutputFormat, views []TokenView) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	default:
		writeTokenTable(out, views)
		return nil
	}
}

func writeTokenTable(out io.Writer, views []TokenView) {
	if len(views) == 0 {
		fmt.Fprintln(out, "No tokens stored.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.Bold.Sprint("DOMAIN"),
		text.Bold.Sprint("NAME"),
		text.Bold.Sprint("TYPE"),
		text.Bold.Sprint("USER"),
		text.Bold.Sprint("TOKEN"),
		text.Bold.Sprint("EXPIRES"),
	})

	for _, v := range views {
		expires := v.ExpiresAt.Local().Format(time.RFC3339)
		if v.Expired {
			expires = text.FgRed.Sprint(expires + " (expired)")
		} else {
			expires = text.FgGreen.Sprint(expires)
		}
		t.AppendRow(table.Row{
			text.FgHiCyan.Sprint(v.Domain),
			v.DomainName,
			v.Type,
			dashIfEmpty(v.UserName),
			v.Token,
			expires,
		})
	}
	t.Render()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return text.Faint.Sprint("-")
	}
	return s
}
