package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/everwish/everwish/cmd"
)

var (
	// version and build info, overridden at build time via ldflags
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, commit, buildTime)
}
