package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ebu/cpa-go/pkg/cpa"
)

// ApprovalPrinter tells the user how to approve a device grant and shows a
// spinner until the grant resolves.
type ApprovalPrinter struct {
	out   io.Writer
	quiet bool

	mu       sync.Mutex
	spinners map[string]*spinner.Spinner
}

// NewApprovalPrinter creates a printer writing to out. In quiet mode only the
// verification URI and user code are printed, without decoration.
func NewApprovalPrinter(out io.Writer, quiet bool) *ApprovalPrinter {
	return &ApprovalPrinter{
		out:      out,
		quiet:    quiet,
		spinners: make(map[string]*spinner.Spinner),
	}
}

// Handle implements cpa.ApprovalHandler.
func (a *ApprovalPrinter) Handle(_ context.Context, approval cpa.Approval) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.quiet {
		fmt.Fprintf(a.out, "%s %s\n", approval.VerificationURI, approval.UserCode)
		return
	}

	fmt.Fprintf(a.out, "\nTo authorize this device for %s, visit:\n\n  %s\n\nand enter the code:\n\n  %s\n\n",
		text.Bold.Sprint(approval.Domain),
		text.FgCyan.Sprint(approval.VerificationURI),
		text.Bold.Sprint(approval.UserCode),
	)
	if !approval.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "The code expires at %s.\n", approval.ExpiresAt.Local().Format(time.Kitchen))
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.out))
	s.Suffix = fmt.Sprintf(" Waiting for approval of %s...", approval.Domain)
	s.Start()
	a.spinners[approval.Domain] = s
}

// Done stops the spinner shown for domain, if any, and prints the outcome.
func (a *ApprovalPrinter) Done(domain string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.spinners[domain]
	if !ok {
		return
	}
	delete(a.spinners, domain)

	msg := FormatSuccess(fmt.Sprintf("Device approved for %s\n", domain))
	if err != nil {
		msg = text.FgRed.Sprintf("✗ Approval for %s failed\n", domain)
	}

	// The spinner never starts when out is not a terminal.
	if !s.Active() {
		fmt.Fprint(a.out, msg)
		return
	}
	s.FinalMSG = msg
	s.Stop()
}

// Pending returns how many domains are still waiting for approval.
func (a *ApprovalPrinter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.spinners)
}
