package main

import (
	"fmt"

	"github.com/qeesung/image2ascii/convert"

	"snapreport/internal/redact"
)

// printAsciiLogo renders a sample page redacted through the editor.
func printAsciiLogo() {
	img := redact.RedactedSample(240, 120)

	opts := convert.DefaultOptions
	opts.FixedWidth = 48
	opts.FixedHeight = 16
	opts.Colored = false

	converter := convert.NewImageConverter()
	fmt.Print(converter.Image2ASCIIString(img, &opts))
}
