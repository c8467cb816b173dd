// The main package for the build-progress executable.
package main

import "github.com/JakeFAU/build-progress/cmd"

func main() {
	cmd.Execute()
}
