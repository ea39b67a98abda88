// Command flatshelf inspects and edits a flatshelf store from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flatshelf:", err)
		os.Exit(1)
	}
}
