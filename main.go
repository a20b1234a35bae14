package main

import "calboard/cmd"

func main() {
	cmd.Run()
}
