package main

import (
	"github.com/Paintersrp/rkill/internal/cli"
	"github.com/Paintersrp/rkill/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
