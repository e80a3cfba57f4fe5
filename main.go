// The main package for the shelfwatch executable.
package main

import "github.com/shelfwatch/crawler/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
