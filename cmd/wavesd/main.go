package main

import "github.com/JamesFord-HappyHippo/Waves-sub004/internal/cli"

func main() {
	cli.Execute()
}
