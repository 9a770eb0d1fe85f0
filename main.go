package main

import "github.com/simonyos/roundtable/cmd"

func main() {
	cmd.Execute()
}
