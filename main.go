package main

import "github.com/hwkim3330/webxr/cmd"

func main() {
	cmd.Execute()
}
