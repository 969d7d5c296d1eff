package main

import "github.com/shopfloor/umpire/cmd/umpire-fetch/cmd"

func main() {
	cmd.Execute()
}
