package main

import (
	"os"

	"invoice_integrity/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
