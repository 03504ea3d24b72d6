package main

import "github.com/ZanzyTHEbar/pangu-agent/cmd"

func main() {
	cmd.Execute()
}
