package main

import "github.com/KaramelBytes/crimescope-cli/cmd"

func main() {
	cmd.Execute()
}
