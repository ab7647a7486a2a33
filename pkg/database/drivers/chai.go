//go:build dragonfly || ios || freebsd || darwin || (linux && ppc64) || (linux && ppc64le) || (linux && s390x) || (linux && amd64) || (linux && mips64) || (linux && mips64le) || (linux && arm64) || android || (windows && amd64) || (windows && arm64)

package drivers

import (
	"database/sql"

	sqlite "modernc.org/sqlite"
)

// "chai" opens SQLite-format files without the WAL pragma tuning applied
// to "sqlite", for deployments that share the file with other tools.
func init() {
	sql.Register("chai", &sqlite.Driver{})
}
