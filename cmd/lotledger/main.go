// Command lotledger records cultivation lots from seed intake to distribution.
package main

import (
	"context"
	"os"

	"lotledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
