// Package cli provides the building blocks shared by the cpa commands.
//
// NewProvider turns a loaded config.Config into a ready cpa.Provider on top
// of the store returned by OpenStore. ApprovalPrinter shows device approval
// instructions with a spinner while the provider polls.
//
// Token values are only printed on explicit request; tables show a
// redacted prefix.
package cli
