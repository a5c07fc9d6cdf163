package main

import (
	"fmt"
	"os"

	"github.com/justyntemme/gainlink/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
