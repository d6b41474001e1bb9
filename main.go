package main

import "github.com/CosmoTheDev/codesense/cmd"

func main() {
	cmd.Execute()
}
