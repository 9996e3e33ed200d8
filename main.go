package main

import "shopping-assistant-pipeline/cmd"

func main() {
	cmd.Execute()
}
