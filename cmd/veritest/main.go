// Package main provides the veritest CLI client.
package main

import "github.com/jfellner/veritest-go/internal/cli"

func main() {
	cli.Execute()
}
