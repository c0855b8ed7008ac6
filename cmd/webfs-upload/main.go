package main

import "github.com/oshokin/webfs/cmd/webfs-upload/cmd"

func main() {
	cmd.Execute()
}
