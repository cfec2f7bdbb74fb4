package main

import "tt-rates-dataset/internal/cli"

func main() {
	cli.Execute()
}
