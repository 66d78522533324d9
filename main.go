package main

import "github.com/rabidaudio/cdz-nuts/cmd"

func main() {
	cmd.Execute()
}
