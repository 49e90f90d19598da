package main

import (
	"os"

	"github.com/slipway-dev/slipway/cmd/slipway/tree"
)

func main() {
	os.Exit(tree.Execute())
}
