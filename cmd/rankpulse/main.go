package main

import (
	"os"

	"horse.fit/rankpulse/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
