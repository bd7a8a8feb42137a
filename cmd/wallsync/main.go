package main

import "github.com/bryanchriswhite/WallSync/cmd/wallsync/commands"

func main() {
	commands.Execute()
}
