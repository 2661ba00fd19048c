package main

import (
	"os"

	"docintake/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
