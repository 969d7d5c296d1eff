package main

import "github.com/shopfloor/umpire/cmd/umpire-server/cmd"

func main() {
	cmd.Execute()
}
