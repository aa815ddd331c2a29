package main

import (
	"os"

	"github.com/stevehiehn/piperun/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
