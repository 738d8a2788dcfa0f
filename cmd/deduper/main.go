package main

import "os"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], newConsole(os.Stdin, os.Stdout)))
}
