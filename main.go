package main

import "github.com/CornwallCorndog/Even-Crop/cmd"

func main() {
	cmd.Execute()
}
