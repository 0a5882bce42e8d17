// Package logger prints timestamped, colored console lines for the server
// and the snapshot client.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	cInf  = color.New(color.FgCyan, color.Bold).SprintFunc()
	cWarn = color.New(color.FgYellow, color.Bold).SprintFunc()
	cErr  = color.New(color.FgRed, color.Bold).SprintFunc()
	cSucc = color.New(color.FgGreen, color.Bold).SprintFunc()
	cDbg  = color.New(color.FgMagenta).SprintFunc()
	cFatl = color.New(color.BgRed, color.FgWhite, color.Bold).SprintFunc()
	cTime = color.New(color.FgHiBlack).SprintFunc()
)

var (
	mu     sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	debug  bool
)

func init() {
	log.SetFlags(0)
}

// SetOutput redirects info lines to out and error lines to errOut.
// A nil writer leaves the corresponding stream untouched.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

// SetDebug toggles LogDebug output.
func SetDebug(enabled bool) {
	mu.Lock()
	debug = enabled
	mu.Unlock()
}

func timeStamp() string {
	return cTime(time.Now().Format("2006-01-02 15:04:05"))
}

func write(w *io.Writer, tag string, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(*w, "%s %s %s\n", timeStamp(), tag, msg)
}

func LogInfo(format string, v ...interface{}) {
	write(&stdout, cInf("[INFO]"), format, v...)
}

func LogSuccess(format string, v ...interface{}) {
	write(&stdout, cSucc("[OK]"), format, v...)
}

func LogWarn(format string, v ...interface{}) {
	write(&stdout, cWarn("[WARN]"), format, v...)
}

// LogDebug is silent unless SetDebug(true) was called.
func LogDebug(format string, v ...interface{}) {
	mu.Lock()
	on := debug
	mu.Unlock()
	if !on {
		return
	}
	write(&stdout, cDbg("[DBG]"), format, v...)
}

func LogError(format string, v ...interface{}) {
	write(&stderr, cErr("[ERR]"), format, v...)
}

func LogFatal(format string, v ...interface{}) {
	write(&stderr, cFatl("[FATAL]"), format, v...)
	os.Exit(1)
}

func LogServerStart(port int, baseURL string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "   %s  %s\n", cSucc("⚡ Report intake is live"), cTime("waiting for submissions..."))
	fmt.Fprintf(stdout, "   %s  %s\n", cInf("➜ Local:"), fmt.Sprintf("http://localhost:%d", port))
	fmt.Fprintf(stdout, "   %s  %s\n", cInf("➜ Public:"), color.New(color.FgHiBlue, color.Underline).Sprint(baseURL))
	fmt.Fprintln(stdout)
}

// LogRaw writes a preformatted line to the info stream.
func LogRaw(line string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(stdout, line)
}
