package main

import (
	"github.com/kfallows/citewright/cmd"
)

// main hands straight off to the cobra command tree; all parsing,
// configuration and execution happens in cmd.
func main() {
	cmd.Execute()
}
