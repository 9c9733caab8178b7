// ./main.go
package main

import (
	"os"

	"github.com/xkilldash9x/autosubmit/cmd"
)

// main lets `go install github.com/xkilldash9x/autosubmit@latest` produce the
// same binary as ./cmd/autosubmit.
func main() {
	os.Exit(cmd.Main())
}
