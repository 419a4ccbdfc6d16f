package main

import "github.com/ValentinKolb/dTuple/cmd"

func main() {
	cmd.Execute()
}
