// Command connections manages the connection repository from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	ctx := context.Background()
	a := newApp(os.Getenv)
	root := newRootCommand(a)
	err := root.ExecuteContext(ctx)
	if closeErr := a.shutdown(ctx, os.Stdout); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "connections:", err)
		os.Exit(1)
	}
}
