package main

import (
	"os"

	_ "time/tzdata"

	"github.com/ShreymShah/breakout-trading-bot/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
