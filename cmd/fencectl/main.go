package main

import "go.pilab.hu/fence/cmd/fencectl/cmd"

func main() {
	cmd.Execute()
}
