package main

import "martianoff/roundel/cmd/roundel/commands"

func main() {
	commands.Execute()
}
