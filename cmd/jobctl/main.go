package main

import "github.com/oshokin/jobctl/cmd/jobctl/cmd"

func main() {
	cmd.Execute()
}
