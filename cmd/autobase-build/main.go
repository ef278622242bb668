package main

import "github.com/autobase/agent-build/pkg/cmd"

func main() {
	cmd.Execute()
}
