package main

import "github.com/jmcleod/ironshield/cmd/ironshield/cmd"

func main() {
	cmd.Execute()
}
