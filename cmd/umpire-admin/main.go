package main

import "github.com/shopfloor/umpire/cmd/umpire-admin/cmd"

func main() {
	cmd.Execute()
}
