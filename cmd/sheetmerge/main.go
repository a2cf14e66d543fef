package main

import "github.com/vietddude/sheetmerge/internal/cli"

func main() {
	cli.Execute()
}
