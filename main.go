package main

import "github.com/stormycloud/shabench/internal/cli"

func main() {
	cli.Execute()
}
