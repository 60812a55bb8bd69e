package main

import "github.com/killallgit/chatstream/cmd"

func main() {
	cmd.Execute()
}
