// cmd/periodic/main.go
package main

import (
	"fmt"
	"os"

	"periodic-engine/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
