package main

import "github.com/OpenTraceLab/djtag/cmd/djtag/cmd"

func main() {
	cmd.Execute()
}
