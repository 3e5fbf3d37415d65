// Package visualization serves the exploration page and its JSON query API.
package visualization

import "embed"

// templates contains the embedded exploration page.
//
//go:embed templates/*
var templates embed.FS
