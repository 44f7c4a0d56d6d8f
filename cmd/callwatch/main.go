package main

import "callwatch/internal/cli"

func main() {
	cli.Execute()
}
