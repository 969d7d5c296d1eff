package main

import "github.com/shopfloor/umpire/cmd/umpire-migrate/cmd"

func main() {
	cmd.Execute()
}
