package main

import "github.com/LaPingvino/offlinecache/cmd/offlinectl/cmd"

func main() {
	cmd.Execute()
}
