package main

import (
	"github.com/neokaiyuan/ask-goodnotes/internal/bootstrap"
)

func main() {
	bootstrap.RunDevServer()
}
