package main

import (
	"energy-flow-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
