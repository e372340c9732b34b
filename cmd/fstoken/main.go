// fstoken is the unprivileged client: it selects an operation from CLI
// flags, runs the unprivileged ACL step, and carries the request to the
// broker over its socket.
package main

import (
	"fmt"
	"os"

	"fstokend/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
