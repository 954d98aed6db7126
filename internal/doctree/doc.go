// Package doctree defines the resolved document tree handed from the markup
// front end to extraction.
// Invariants:
//   - Every node carries the source span it was produced from; spans of
//     included files refer to their own FileID.
//   - Children appear in document order.
//   - Lang/Region hold the language context in force for the node (empty
//     Lang means "not declared").
//   - Verbatim is true only when Text is a byte-exact copy of the span.
package doctree
