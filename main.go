// Command portalsim runs the portal room simulation daemon and its offline tools.
package main

import "portalsim/engine/cmd"

func main() {
	cmd.Execute()
}
