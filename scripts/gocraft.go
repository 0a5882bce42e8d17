//go:build ignore

// gocraft cross-builds the server and the capture CLI.
//
//	go run scripts/gocraft.go --all
//	go run scripts/gocraft.go -a snapshot -p linux/arm64
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"snapreport/pkg/utils"
)

const DefaultDistDir = "bin"

// App is one buildable binary.
type App struct {
	Name  string
	Entry string
	// CGO is required by the sqlite driver; the CLI builds without it.
	CGO bool
}

var apps = map[string]App{
	"snapreport": {Name: "snapreport", Entry: "./cmd/snapreport", CGO: true},
	"snapshot":   {Name: "snapshot", Entry: "./cmd/snapshot", CGO: false},
}

type BuildTarget struct {
	OS   string
	Arch string
}

type BuildResult struct {
	App      string
	Platform string
	Status   string
	Duration time.Duration
	Artifact string
	Size     string
	ErrorMsg string
}

var (
	selected   []string
	appVersion string
	outputDir  string
	versionVar string
	buildAll   bool
	platforms  []string
	stripDebug bool
)

var commonTargets = []BuildTarget{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"windows", "amd64"},
	{"darwin", "amd64"},
	{"darwin", "arm64"},
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gocraft",
		Short: "Cross-build snapreport binaries",
		RunE:  runBuild,
	}

	rootCmd.Flags().StringSliceVarP(&selected, "app", "a", []string{"snapreport", "snapshot"}, "Apps to build")
	rootCmd.Flags().StringVarP(&appVersion, "version", "v", "dev", "Version string")
	rootCmd.Flags().StringVarP(&outputDir, "out", "o", DefaultDistDir, "Output directory")
	rootCmd.Flags().StringVar(&versionVar, "ver-var", "main.Version", "Variable to inject version into (empty disables)")
	rootCmd.Flags().BoolVar(&buildAll, "all", false, "Build for all common platforms")
	rootCmd.Flags().StringSliceVarP(&platforms, "platform", "p", []string{}, "Custom platforms (os/arch)")
	rootCmd.Flags().BoolVar(&stripDebug, "strip", true, "Strip debug symbols (-s -w)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	printBanner()

	var chosen []App
	for _, name := range selected {
		a, ok := apps[name]
		if !ok {
			return fmt.Errorf("unknown app %q", name)
		}
		chosen = append(chosen, a)
	}

	targets := resolveTargets()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	printInfo(chosen, targets)

	var results []BuildResult
	pterm.Println()

	multi, _ := pterm.DefaultMultiPrinter.Start()
	for _, a := range chosen {
		for _, t := range targets {
			results = append(results, executeBuild(a, t, multi))
		}
	}
	multi.Stop()

	printSummary(results, time.Since(startTime))
	for _, r := range results {
		if r.ErrorMsg != "" {
			return fmt.Errorf("%d build(s) failed", countFailed(results))
		}
	}
	return nil
}

func resolveTargets() []BuildTarget {
	if len(platforms) > 0 {
		var custom []BuildTarget
		for _, p := range platforms {
			parts := strings.Split(p, "/")
			if len(parts) != 2 {
				pterm.Warning.Printf("Invalid platform: %s\n", p)
				continue
			}
			custom = append(custom, BuildTarget{parts[0], parts[1]})
		}
		return custom
	}
	if buildAll {
		return commonTargets
	}
	return []BuildTarget{{runtime.GOOS, runtime.GOARCH}}
}

func executeBuild(a App, t BuildTarget, printer *pterm.MultiPrinter) BuildResult {
	start := time.Now()

	fileName := a.Name
	if buildAll || len(platforms) > 0 {
		fileName = fmt.Sprintf("%s-%s-%s", a.Name, t.OS, t.Arch)
	}
	if t.OS == "windows" {
		fileName += ".exe"
	}

	outPath := filepath.Join(outputDir, fileName)
	label := fmt.Sprintf("%s/%s", t.OS, t.Arch)

	spinner, _ := pterm.DefaultSpinner.WithWriter(printer.NewWriter()).Start("Building " + a.Name + " " + label + "...")

	var ldflags []string
	if stripDebug {
		ldflags = append(ldflags, "-s", "-w")
	}
	if versionVar != "" {
		ldflags = append(ldflags, fmt.Sprintf("-X '%s=%s'", versionVar, appVersion))
	}

	cmdArgs := []string{"build", "-trimpath"}
	if len(ldflags) > 0 {
		cmdArgs = append(cmdArgs, "-ldflags", strings.Join(ldflags, " "))
	}
	cmdArgs = append(cmdArgs, "-o", outPath, a.Entry)

	cgo := "0"
	if a.CGO {
		cgo = "1"
	}
	cmd := exec.Command("go", cmdArgs...)
	cmd.Env = append(os.Environ(), "GOOS="+t.OS, "GOARCH="+t.Arch, "CGO_ENABLED="+cgo)

	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	if err != nil {
		spinner.Fail(fmt.Sprintf("Failed: %s %s", a.Name, label))
		return BuildResult{a.Name, label, pterm.FgRed.Sprint("FAIL"), duration, "-", "-", string(output)}
	}

	size := "-"
	if fi, err := os.Stat(outPath); err == nil {
		size = utils.FormatBytes(fi.Size())
	}
	spinner.Success(fmt.Sprintf("Built: %s %s (%s)", a.Name, label, size))

	return BuildResult{
		App:      a.Name,
		Platform: label,
		Status:   pterm.FgGreen.Sprint("SUCCESS"),
		Duration: duration,
		Artifact: fileName,
		Size:     size,
	}
}

func countFailed(results []BuildResult) int {
	n := 0
	for _, r := range results {
		if r.ErrorMsg != "" {
			n++
		}
	}
	return n
}

func printBanner() {
	fmt.Println()
	color.New(color.FgHiCyan, color.Bold).Print("GO")
	color.New(color.FgHiMagenta, color.Bold).Print("CRAFT")
	color.New(color.FgHiBlack).Printf(" %s\n", appVersion)
	fmt.Println()
}

func printInfo(chosen []App, targets []BuildTarget) {
	names := make([]string, 0, len(chosen))
	for _, a := range chosen {
		names = append(names, a.Name)
	}
	data := [][]string{
		{"Apps", pterm.FgCyan.Sprint(strings.Join(names, ", "))},
		{"Version", pterm.FgCyan.Sprint(appVersion)},
		{"Output Dir", outputDir},
		{"Target Count", fmt.Sprintf("%d", len(targets))},
	}
	pterm.DefaultTable.WithData(data).WithBoxed().Render()
}

func printSummary(results []BuildResult, totalTime time.Duration) {
	pterm.Println()
	pterm.DefaultHeader.WithFullWidth().WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).Println("BUILD SUMMARY")
	pterm.Println()

	tableData := [][]string{
		{"APP", "PLATFORM", "STATUS", "SIZE", "DURATION", "ARTIFACT"},
	}
	for _, r := range results {
		tableData = append(tableData, []string{r.App, r.Platform, r.Status, r.Size, r.Duration.Round(time.Millisecond).String(), r.Artifact})
	}
	pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(tableData).Render()

	for _, r := range results {
		if r.ErrorMsg != "" {
			pterm.Println()
			pterm.Error.Printf("Compiler error for %s [%s]:\n%s\n", r.App, r.Platform, r.ErrorMsg)
		}
	}

	pterm.Println()
	pterm.Info.Printf("Total time: %v\n", totalTime.Round(time.Millisecond))
}
