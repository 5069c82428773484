package main

import "gridpulse/internal/cli"

func main() {
	cli.Execute()
}
