package main

import (
	"os"

	"github.com/BytebleCode/Investment-Platform/cmd/portfolioctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
