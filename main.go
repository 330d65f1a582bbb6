package main

import "github.com/jmehdipour/repo-digest/cmd"

func main() {
	cmd.Execute()
}
