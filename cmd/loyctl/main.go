package main

import "github.com/karvy-labs/loyaltypulse/internal/cli"

func main() {
	cli.Execute()
}
