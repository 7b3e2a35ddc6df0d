// Command identity runs the authentication server and manages its users.
package main

import "github.com/rhuss/identity/cmd/identity/cmd"

func main() {
	cmd.Execute()
}
