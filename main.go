// The main package for the silkcrawl executable.
package main

import (
	"github.com/JakeFAU/silkcrawl/cmd"
)

func main() {
	cmd.Execute()
}
