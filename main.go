package main

import (
	"context"
	"log"
	"os"

	"github.com/sqlbits/dblock/cmd"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := cmd.New().Run(context.Background(), os.Args); err != nil {
		log.Printf("error running the application: %s", err)

		return 1
	}

	return 0
}
