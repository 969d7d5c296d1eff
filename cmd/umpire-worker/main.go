package main

import "github.com/shopfloor/umpire/cmd/umpire-worker/cmd"

func main() {
	cmd.Execute()
}
