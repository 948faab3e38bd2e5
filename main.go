package main

import "github.com/encodeous/bfroute/cmd"

func main() {
	cmd.Execute()
}
