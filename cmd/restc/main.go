package main

import "github.com/lgc202/restkit/internal/cli"

func main() {
	cli.Main()
}
