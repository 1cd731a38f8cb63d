package main

import "github.com/oshokin/jobctl/cmd/jobctl-sandbox/cmd"

func main() {
	cmd.Execute()
}
