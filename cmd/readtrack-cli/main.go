package main

import "readtrack-backend/cmd/readtrack-cli/cmd"

func main() {
	cmd.Execute()
}
