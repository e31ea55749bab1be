package main

import "github.com/KaramelBytes/datastory/cmd"

func main() {
	cmd.Execute()
}
