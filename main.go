package main

import "github.com/AryanVBW/CommonsProxy-sub000/cmd"

func main() {
	cmd.Execute()
}
