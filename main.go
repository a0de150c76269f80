package main

import "github.com/tokengate/tokengate/cmd"

func main() {
	cmd.Execute()
}
