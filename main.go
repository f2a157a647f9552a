package main

import "kenya-earn/cmd"

func main() {
	cmd.Execute()
}
