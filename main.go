package main

import "github.com/Kashuab/openpark/cmd"

func main() {
	cmd.Execute()
}
