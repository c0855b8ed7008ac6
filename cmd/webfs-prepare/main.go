package main

import "github.com/oshokin/webfs/cmd/webfs-prepare/cmd"

func main() {
	cmd.Execute()
}
