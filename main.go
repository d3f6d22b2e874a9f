package main

import "github.com/notargets/mblkcomm/cmd"

func main() {
	cmd.Execute()
}
