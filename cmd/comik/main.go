package main

import "comik/cmd/comik/command"

func main() {
	command.Execute()
}
