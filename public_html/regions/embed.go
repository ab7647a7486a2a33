// Package regions embeds the bundled sample region file so the server can
// start without any external data.
package regions

import _ "embed"

// Sample is a coarse world sample in the region JSON layout (x = longitude,
// y = negated latitude).
//
//go:embed regions.json
var Sample []byte
