package main

import (
	"os"

	"github.com/xylose/go-threadcache/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
