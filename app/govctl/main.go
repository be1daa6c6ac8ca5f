// Command govctl is the governor's operator CLI: inspect the current token
// pool state, watch it live in a terminal dashboard, and check versions.
package main

import "github.com/buildgovernor/governor/app/govctl/cmd"

func main() {
	cmd.Execute()
}
