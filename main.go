package main

import "github.com/stackvista/es-tier-migrator/cmd"

func main() {
	cmd.Execute()
}
