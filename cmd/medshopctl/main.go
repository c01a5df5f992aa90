package main

import "medshop/cmd/medshopctl/commands"

func main() {
	commands.Execute()
}
