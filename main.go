package main

import (
	"trade-signal-radar/internal/cli"
)

func main() {
	cli.Execute()
}
