package main

import "github.com/kozaktomas/facewatch/cmd"

func main() {
	cmd.Execute()
}
