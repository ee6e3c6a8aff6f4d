package main

import (
	"fmt"
	"os"

	"github.com/nojima/fetchie-go"
)

func main() {
	if err := fetchie.Main(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
