package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/desglose/internal/desglosecli"
)

func main() {
	if err := desglosecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, desglosecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			desglosecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
