// Package logging provides the structured logger shared by the cpa library,
// the CLI and the development provider.
//
// It is a thin layer over log/slog. Entries carry a subsystem attribute so
// output can be filtered per component:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Provider", "Requesting token for %s", domain)
//	logging.Error("Store", err, "Failed to persist token for %s", domain)
//
// Components that accept a *slog.Logger (cpa.WithLogger, devprovider.New)
// get one tagged with their subsystem through Logger:
//
//	p, err := cpa.New(baseURL, store, cpa.WithLogger(logging.Logger("Provider")))
//
// Token values and client secrets must never be logged. RedactSecret yields a
// short correlation hint when one is needed.
package logging
