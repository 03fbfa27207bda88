package main

import "github.com/headwalluk/vulnz-agent/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
