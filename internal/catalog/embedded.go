// File: internal/catalog/embedded.go
package catalog

import _ "embed"

// defaultCatalog ships a small set of known providers and sources so the
// tool is usable without any local catalog file.
//
//go:embed catalog.json
var defaultCatalog []byte
