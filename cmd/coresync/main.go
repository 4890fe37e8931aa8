// Command coresync syncs Minecraft server core builds into a local catalog
// and serves it over HTTP.
package main

import (
	"context"
	"os"

	"github.com/UCKETX/mcsm-templates/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
