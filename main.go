package main

import (
	"github.com/stellar/kelp/cmd"
)

func main() {
	cmd.Execute()
}
