package main

import (
	"context"

	"github.com/use-agent/perkins/cli"
)

func main() {
	cli.ExecuteContext(context.Background())
}
