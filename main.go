package main

import "github.com/audiolibrelab/actura/cmd"

func main() {
	cmd.Execute()
}
