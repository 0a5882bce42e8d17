package main

import (
	"fmt"

	"github.com/fatih/color"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func printSignature() {
	cyan := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	white := color.New(color.FgWhite).SprintFunc()

	fmt.Println()
	fmt.Printf("%s : %s\n", cyan("Project    "), white("snapreport "+Version))
	fmt.Printf("%s : %s\n", cyan("Intake     "), white("POST /reports  (bearer token or session)"))
	fmt.Printf("%s : %s\n", cyan("Extension  "), white("GET /auth/extension-token"))
	fmt.Println()
}
