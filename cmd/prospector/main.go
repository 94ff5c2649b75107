// Command prospector runs the goldrush prospecting agent.
package main

import "github.com/mesh-intelligence/goldrush/internal/cli"

func main() {
	cli.Execute()
}
