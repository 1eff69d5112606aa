package main

import "github.com/KaramelBytes/churnflow-cli/cmd"

func main() {
	cmd.Execute()
}
