package main

import "flock_apiserver/internal/cmd"

func main() {
	cmd.Execute()
}
