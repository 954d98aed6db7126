// Package diag defines the diagnostic model shared by the check pipeline and
// every presentation layer.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity – Info, Warning or Error. Checker findings default to Info.
//   - Code – compact numeric identifier (see codes.go) with stable string form.
//     Checker findings use CheckGrammar or CheckSpelling; the engine's own rule
//     id travels in RuleID.
//   - Message – the checker's message, unchanged.
//   - Primary span – source.Span in the original markup file.
//   - Notes – optional secondary spans, e.g. the other half of a finding that
//     crossed a node boundary.
//   - Fixes – suggested replacements, each a single edit of Primary.
//
// # Emitting diagnostics
//
// The pipeline adds every mapped finding and extraction warning to one Bag,
// then sorts it and drops exact repeats. A Bag with a limit counts what it
// refused, so reports can say how much was hidden.
//
// # Consumers
//
//   - internal/diagfmt: pretty, json and sarif reports.
//   - WriteShort: one line per finding for scripts and tests.
//   - internal/lsp: publishDiagnostics and code actions.
//
// Keep the model deterministic: the same run must produce the same sorted
// Bag, so reports and caches stay stable.
package diag
