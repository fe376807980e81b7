package main

import "github.com/daimatz/jvmsandbox/cmd/jvmsandbox/cmd"

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.AppVersion = version + " (" + commit + ")"
	cmd.Execute()
}
