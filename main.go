package main

import "jarvis/internal/commands"

func main() {
	commands.Execute()
}
