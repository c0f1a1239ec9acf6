package main

import "github.com/sajjad-MoBe/MVCCStore/cmd"

func main() {
	cmd.Execute()
}
