package main

import "ledwatcher/internal/cli"

func main() {
	cli.Execute()
}
