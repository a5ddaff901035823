package main

import "github.com/pulseboard/pulseboard/internal/cli"

func main() {
	cli.Execute()
}
