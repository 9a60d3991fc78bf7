// Package builtin ships the default threat rules inside the binary.
package builtin

import "embed"

//go:embed *.json
var FS embed.FS
