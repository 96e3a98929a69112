package main

import "nightjar/cmd"

func main() {
	cmd.Execute()
}
