package main

import (
	"github.com/remoteds/hostingctl/internal/cli"
)

func main() {
	cli.Execute()
}
