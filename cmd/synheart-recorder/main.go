package main

import "github.com/synheart/synheart-recorder/internal/cli"

func main() {
	cli.Execute()
}
