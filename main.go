package main

import (
	"io"
	"os"

	"github.com/repoteer/repoteer/cmd/cli"
)

// main executes the repoteer command-line application.
func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(arguments []string, inputReader io.Reader, outputWriter io.Writer, errorWriter io.Writer) int {
	return cli.Run(arguments, inputReader, outputWriter, errorWriter)
}
