package main

import (
	"os"

	"github.com/onuralpArsln/AINewspaper/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
