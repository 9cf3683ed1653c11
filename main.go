package main

import (
	"github.com/jlumpe/gambit/cmd"
)

func main() {
	cmd.Execute() // initialize cobra commands
}
