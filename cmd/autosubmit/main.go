// File: cmd/autosubmit/main.go
package main

import (
	"os"

	"github.com/xkilldash9x/autosubmit/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
