package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ebu/cpa-go/pkg/cpa"
)

func testApproval(domain string) cpa.Approval {
	return cpa.Approval{
		Domain:          domain,
		VerificationURI: "https://cpa.example/verify",
		UserCode:        "BCDF-GHJK",
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}
}

func TestApprovalPrinter(t *testing.T) {
	t.Run("prints instructions and outcome", func(t *testing.T) {
		var buf bytes.Buffer
		printer := NewApprovalPrinter(&buf, false)

		printer.Handle(context.Background(), testApproval("radio.example"))
		assert.Equal(t, 1, printer.Pending())
		assert.Contains(t, buf.String(), "https://cpa.example/verify")
		assert.Contains(t, buf.String(), "BCDF-GHJK")
		assert.Contains(t, buf.String(), "radio.example")

		printer.Done("radio.example", nil)
		assert.Equal(t, 0, printer.Pending())
		assert.Contains(t, buf.String(), "Device approved for radio.example")
	})

	t.Run("reports failure", func(t *testing.T) {
		var buf bytes.Buffer
		printer := NewApprovalPrinter(&buf, false)

		printer.Handle(context.Background(), testApproval("radio.example"))
		printer.Done("radio.example", errors.New("denied"))
		assert.Contains(t, buf.String(), "Approval for radio.example failed")
	})

	t.Run("done without approval is a no-op", func(t *testing.T) {
		var buf bytes.Buffer
		printer := NewApprovalPrinter(&buf, false)

		printer.Done("news.example", nil)
		assert.Empty(t, buf.String())
	})

	t.Run("quiet prints uri and code only", func(t *testing.T) {
		var buf bytes.Buffer
		printer := NewApprovalPrinter(&buf, true)

		printer.Handle(context.Background(), testApproval("radio.example"))
		assert.Equal(t, "https://cpa.example/verify BCDF-GHJK\n", buf.String())
		assert.Equal(t, 0, printer.Pending())

		printer.Done("radio.example", nil)
		assert.Equal(t, "https://cpa.example/verify BCDF-GHJK\n", buf.String())
	})
}
