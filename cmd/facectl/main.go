package main

import (
	"facegate/internal/cli"
	"facegate/internal/integrations/opencv"
)

func main() {
	cli.Execute(opencv.NewDetector)
}
