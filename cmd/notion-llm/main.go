// Command notion-llm indexes a tree of Notion pages into a vector store and
// answers questions about them, from the command line or over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/karthikgk97/notion-llm/cmd/notion-llm/commands"
)

func main() {
	if err := commands.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
