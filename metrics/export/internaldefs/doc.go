// Package internaldefs is the single source of truth for exporter-facing
// metric names.
//
// Both the Prometheus and OTel exporters render from the definitions here,
// so series names, help text, and bucket boundaries cannot drift apart.
// Changing a definition changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Touch the network or filesystem.
package internaldefs
