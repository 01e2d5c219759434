package main

import "offliner/cmd"

func main() {
	cmd.Execute()
}
