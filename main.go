package main

import "sourcerer/cmd"

func main() {
	cmd.Execute()
}
