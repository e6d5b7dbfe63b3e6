package main

import "docchat/cmd/docchat/cli"

func main() {
	cli.Execute()
}
