package main

import "github.com/fakeyudi/smilebooth/cmd"

func main() {
	cmd.Execute()
}
