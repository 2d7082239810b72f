package main

import "github.com/tmnhat/basketq/internal/cli"

func main() {
	cli.Execute()
}
