package main

import "github.com/theirongolddev/tokenwise/cmd"

func main() {
	cmd.Execute()
}
