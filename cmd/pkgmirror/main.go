package main

import (
	"os"

	"github.com/osvaldoandrade/pkgmirror/pkg/pkgmirror"
)

func main() {
	os.Exit(pkgmirror.Execute())
}
