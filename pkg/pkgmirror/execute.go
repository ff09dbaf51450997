package pkgmirror

import "github.com/osvaldoandrade/pkgmirror/internal/cli"

// Execute runs the pkgmirror CLI entrypoint.
func Execute() int {
	return cli.Execute()
}
