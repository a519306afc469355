// Command registry-review extracts and verifies compliance evidence for
// carbon registry project reviews, from the command line or over MCP.
package main

import (
	"os"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driving/cli"
)

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
