package main

import "github.com/MothMetrics/respclim-cli/cmd"

func main() {
	cmd.Execute()
}
