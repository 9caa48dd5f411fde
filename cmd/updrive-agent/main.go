package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/updrive-io/updrive/cmd/updrive-agent/app"
)

func main() {
	app.NewApp().Run()
}
