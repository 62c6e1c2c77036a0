package main

import "github.com/ValentinKolb/hed/cmd"

func main() {
	cmd.Execute()
}
