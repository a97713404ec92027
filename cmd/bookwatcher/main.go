package main

import (
	"orderbook-watcher/internal/cli"
)

func main() {
	cli.Execute()
}
