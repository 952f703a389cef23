package main

import "github.com/KaramelBytes/tabaudit-cli/cmd"

func main() {
	cmd.Execute()
}
