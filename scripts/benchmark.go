//go:build ignore

// benchmark drives the report API with concurrent reads and writes.
// Configuration lives in bench.json:
//
//	{"base_url": "http://localhost:9980", "total_req": 2000, "worker": 50, "token": "<bearer>"}
//
// Writes are rate limited per user, so most of the write phase is expected to
// come back 429; the report shows how fast the limiter answers.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"snapreport/internal/capture"
	"snapreport/internal/redact"
)

type BenchConfig struct {
	BaseURL       string `json:"base_url"`
	TotalRequests int    `json:"total_req"`
	Concurrency   int    `json:"worker"`
	Token         string `json:"token"`
}

var client *http.Client

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// phaseStats collects one phase's outcomes. Workers append under mu.
type phaseStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
	ok        atomic.Uint64
}

func (p *phaseStats) record(code int, d time.Duration) {
	if code >= 200 && code < 300 {
		p.ok.Add(1)
	}
	p.mu.Lock()
	p.latencies = append(p.latencies, d)
	p.codes[code]++
	p.mu.Unlock()
}

func (p *phaseStats) percentile(q float64) time.Duration {
	i := int(float64(len(p.latencies)-1) * q)
	return p.latencies[i]
}

func main() {
	pterm.DefaultBigText.WithLetters(
		pterm.NewLettersFromStringWithStyle("SNAP", pterm.NewStyle(pterm.FgCyan)),
		pterm.NewLettersFromStringWithStyle("BENCH", pterm.NewStyle(pterm.FgMagenta)),
	).Render()

	config := loadConfig()
	pterm.Info.Printf("Loaded Config: %s | Workers: %d | Requests: %d\n", config.BaseURL, config.Concurrency, config.TotalRequests)

	client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:          1000,
			MaxIdleConnsPerHost:   config.Concurrency + 50,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	if !checkServerHealth(config.BaseURL) {
		return
	}

	runBenchmark("READ (GET /reports?sort=top)", config, func() int {
		return makeRequest(http.MethodGet, config.BaseURL+"/reports?sort=top", nil, config.Token)
	})

	fmt.Println()

	shot := createScreenshot()
	runBenchmark("WRITE (POST /reports)", config, func() int {
		return submitRequest(shot, config)
	})

	fmt.Println()

	runBenchmark("UNAUTHENTICATED (POST /reports)", config, func() int {
		return makeRequest(http.MethodPost, config.BaseURL+"/reports", bytes.NewReader([]byte(`{"text":"x"}`)), "")
	})
}

func loadConfig() BenchConfig {
	paths := []string{"bench.json", "../bench.json"}

	for _, path := range paths {
		if content, err := os.ReadFile(path); err == nil {
			var config BenchConfig
			if err := json.Unmarshal(content, &config); err != nil {
				pterm.Fatal.Printf("Invalid JSON in %s: %v\n", path, err)
			}
			if config.Concurrency <= 0 {
				config.Concurrency = 10
			}
			pterm.Success.Printf("Config loaded from: %s\n", path)
			return config
		}
	}

	pterm.Fatal.Println("bench.json not found! Please create it in the root directory.")
	return BenchConfig{}
}

// runBenchmark fires cfg.TotalRequests operations from cfg.Concurrency
// workers pulling from a shared job channel.
func runBenchmark(name string, cfg BenchConfig, operation func() int) {
	bar, _ := pterm.DefaultProgressbar.WithTotal(cfg.TotalRequests).WithTitle(name).WithRemoveWhenDone(true).Start()

	stats := &phaseStats{
		codes:     make(map[int]int),
		latencies: make([]time.Duration, 0, cfg.TotalRequests),
	}

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				t0 := time.Now()
				stats.record(operation(), time.Since(t0))
				bar.Increment()
			}
		}()
	}
	for i := 0; i < cfg.TotalRequests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	printReport(name, stats, time.Since(start))
}

func makeRequest(method, url string, body io.Reader, token string) int {
	req, _ := http.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func submitRequest(shot string, cfg BenchConfig) int {
	body := bufferPool.Get().(*bytes.Buffer)
	body.Reset()
	defer bufferPool.Put(body)

	sub := capture.Submission{
		Text:              "bench " + uuid.NewString(),
		URL:               "https://bench.example.com/",
		Title:             "Bench",
		ScreenshotDataURL: &shot,
		Client:            &capture.ClientInfo{Browser: "snapbench", OS: "linux"},
	}
	if err := json.NewEncoder(body).Encode(sub); err != nil {
		return 0
	}
	return makeRequest(http.MethodPost, cfg.BaseURL+"/reports", body, cfg.Token)
}

// createScreenshot renders a small redacted page with some noise so every
// run does not compress to the same bytes.
func createScreenshot() string {
	img := redact.SampleDocument(200, 120)
	for i := 0; i < len(img.Pix); i += 4 * 7 {
		img.Pix[i] = uint8(rand.Intn(255))
	}
	e := redact.NewEditor(img)
	e.Replay(redact.Drag(20, 20, 80, 16))
	dataURL, err := capture.EncodeDataURL(e.ExportFlattened(), capture.PNG, 0)
	if err != nil {
		pterm.Fatal.Printf("encode screenshot: %v\n", err)
	}
	return dataURL
}

func checkServerHealth(baseURL string) bool {
	spinner, _ := pterm.DefaultSpinner.Start("Checking server...")
	if resp, err := http.Get(baseURL + "/healthz"); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			spinner.Success("Server is UP! (" + baseURL + ")")
			return true
		}
	}
	spinner.Fail("Server is DOWN! (" + baseURL + ")")
	return false
}

func printReport(name string, s *phaseStats, elapsed time.Duration) {
	total := len(s.latencies)
	if total == 0 {
		return
	}
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })

	rows := pterm.TableData{
		{"Metric", name},
		{"Throughput", fmt.Sprintf("%.2f req/s", float64(total)/elapsed.Seconds())},
		{"2xx", fmt.Sprintf("%d / %d", s.ok.Load(), total)},
		{"P50", s.percentile(0.50).String()},
		{"P95", s.percentile(0.95).String()},
		{"P99", s.percentile(0.99).String()},
		{"Max", s.latencies[total-1].String()},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	breakdown := pterm.TableData{{"Status", "Count"}}
	for _, code := range codes {
		label := fmt.Sprintf("%d", code)
		if code == 0 {
			label = "transport error"
		}
		breakdown = append(breakdown, []string{label, fmt.Sprintf("%d", s.codes[code])})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(breakdown).Render()
}
