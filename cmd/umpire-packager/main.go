package main

import "github.com/shopfloor/umpire/cmd/umpire-packager/cmd"

func main() {
	cmd.Execute()
}
