package main

import "github.com/andresmejia3/kirkifier/cmd"

func main() {
	cmd.Execute()
}
