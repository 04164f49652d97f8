// Package core defines the shared vocabulary of the atlas data-access layer.
//
// This package contains:
//   - The error taxonomy (ErrConfiguration, ErrNotConnected, ErrValidation,
//     ErrQuery, ErrConnection) and its structured error types
//   - Frame, the in-memory tabular dataset used by bulk loads and fetches
//   - FetchShape and ResultSet, the output shapes of a fetch
//   - Table, a schema-qualified table reference
//
// pkg/core imports only the standard library. All other packages depend on
// core, not the reverse.
package core
