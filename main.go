package main

import "github.com/ValentinNM/appbundler/cmd"

func main() {
	cmd.Execute()
}
