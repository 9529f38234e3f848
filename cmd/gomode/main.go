package main

import (
	"gomode.sh/cmdpkg/gomode"
)

func main() {
	gomode.Main()
}
