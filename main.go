package main

import (
	"os"

	"github.com/GabrielLegend/tca-plugin-sonarqube/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
