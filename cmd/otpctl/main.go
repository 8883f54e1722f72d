package main

import (
	"os"

	"github.com/jeremyhahn/go-totp/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
