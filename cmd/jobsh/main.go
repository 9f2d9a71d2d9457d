package main

import (
	"github.com/Paintersrp/jobsh/internal/cli"
)

func main() {
	cli.Execute()
}
