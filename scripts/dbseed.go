//go:build ignore

// dbseed fills a local database with users, sessions and reports so the API
// and the admin endpoints have something to show.
//
//	go run scripts/dbseed.go -db ./data/snapreport.db -reports 200
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"snapreport/internal/capture"
	"snapreport/internal/database"
	"snapreport/internal/identity"
	"snapreport/internal/ingest"
	"snapreport/internal/redact"
	"snapreport/internal/reports"
)

const WorkerCount = 4

var (
	pages = []struct{ url, title string }{
		{"https://shop.example.com/checkout", "Checkout & Pay"},
		{"https://shop.example.com/cart", "Your Cart"},
		{"https://app.example.com/settings/profile", "Profile Settings"},
		{"https://app.example.com/dashboard", "Dashboard"},
		{"https://docs.example.com/getting-started", "Getting Started"},
	}
	problems = []string{
		"Pay button does nothing",
		"Avatar upload spins forever",
		"Totals are off by one cent",
		"Layout breaks below 400px",
		"Dark mode text is unreadable",
		"Search returns stale results",
	}
)

type Result struct {
	ID      string
	Success bool
	Error   error
}

func main() {
	dbPath := flag.String("db", "./data/snapreport.db", "database file")
	total := flag.Int("reports", 100, "reports to create")
	users := flag.Int("users", 8, "reporting users (a triager is added on top)")
	flag.Parse()

	pterm.DefaultHeader.WithFullWidth().WithBackgroundStyle(pterm.NewStyle(pterm.BgLightMagenta)).WithTextStyle(pterm.NewStyle(pterm.FgBlack)).Println("SNAPREPORT SEEDER")
	pterm.Println()

	_ = pterm.DefaultTable.WithBoxed().WithData(pterm.TableData{
		{"Database", color.New(color.FgCyan).Sprint(*dbPath)},
		{"Reports", color.New(color.FgYellow).Sprintf("%d", *total)},
		{"Users", color.New(color.FgYellow).Sprintf("%d + 1 triager", *users)},
		{"Workers", color.New(color.FgYellow).Sprintf("%d", WorkerCount)},
	}).Render()
	pterm.Println()

	db, err := database.Open(*dbPath)
	if err != nil {
		pterm.Fatal.Printf("open database: %v\n", err)
	}

	ctx := context.Background()
	sessions := &identity.Sessions{DB: db}
	store := reports.NewStore(db)

	triager, err := sessions.EnsureUser(ctx, "triage@example.com", "Triage Team")
	if err != nil {
		pterm.Fatal.Printf("create triager: %v\n", err)
	}
	if err := db.Model(triager).Update("role", database.RoleTriager).Error; err != nil {
		pterm.Fatal.Printf("promote triager: %v\n", err)
	}

	var userIDs []string
	var cookies [][]string
	for i := 1; i <= *users; i++ {
		u, err := sessions.EnsureUser(ctx, fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("User %d", i))
		if err != nil {
			pterm.Fatal.Printf("create user: %v\n", err)
		}
		s, err := sessions.Create(ctx, u.ID)
		if err != nil {
			pterm.Fatal.Printf("create session: %v\n", err)
		}
		userIDs = append(userIDs, u.ID)
		cookies = append(cookies, []string{u.Email, s.Token})
	}
	ts, err := sessions.Create(ctx, triager.ID)
	if err != nil {
		pterm.Fatal.Printf("create session: %v\n", err)
	}
	cookies = append(cookies, []string{triager.Email + " (triager)", ts.Token})

	bar, _ := pterm.DefaultProgressbar.
		WithTotal(*total).
		WithTitle("Seeding reports...").
		WithShowCount(true).
		WithShowElapsedTime(true).
		Start()

	var wg sync.WaitGroup
	jobs := make(chan int, *total)
	results := make(chan Result, *total)

	for w := 0; w < WorkerCount; w++ {
		wg.Add(1)
		go worker(ctx, store, userIDs, triager.ID, jobs, results, &wg, bar)
	}
	for i := 0; i < *total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)
	bar.Stop()

	ok, failed := 0, 0
	var failures []Result
	for res := range results {
		if res.Success {
			ok++
		} else {
			failed++
			failures = append(failures, res)
		}
	}

	pterm.Println()
	if failed == 0 {
		pterm.DefaultSection.WithStyle(pterm.NewStyle(pterm.FgGreen)).Println("SEEDING COMPLETED SUCCESSFULLY")
	} else {
		pterm.DefaultSection.WithStyle(pterm.NewStyle(pterm.FgYellow)).Println("COMPLETED WITH ERRORS")
		for _, f := range failures {
			fmt.Printf(" - %s\n", color.RedString("%v", f.Error))
		}
	}
	pterm.Info.Printf("Created: %d | Failed: %d\n", ok, failed)

	pterm.Println()
	pterm.Info.Println("Session cookies (session_token):")
	_ = pterm.DefaultTable.WithHasHeader().WithData(append(pterm.TableData{{"User", "Cookie"}}, cookies...)).Render()
}

func worker(ctx context.Context, store *reports.Store, users []string, triagerID string, jobs <-chan int, results chan<- Result, wg *sync.WaitGroup, bar *pterm.ProgressbarPrinter) {
	defer wg.Done()

	for j := range jobs {
		id, err := seedReport(ctx, store, users, triagerID, j)
		results <- Result{ID: id, Success: err == nil, Error: err}
		bar.Increment()
	}
}

// seedReport files one report through the same validation the API uses,
// then adds votes, a comment and sometimes a status change.
func seedReport(ctx context.Context, store *reports.Store, users []string, triagerID string, n int) (string, error) {
	page := pages[rand.Intn(len(pages))]
	author := users[rand.Intn(len(users))]

	p := ingest.Payload{
		Text:   fmt.Sprintf("%s (#%d)", problems[rand.Intn(len(problems))], n),
		URL:    page.url,
		Title:  page.title,
		Client: &ingest.ClientInfo{Browser: "Chrome 120", OS: "macOS"},
	}

	// Every third report carries a redacted sample screenshot.
	if n%3 == 0 {
		e := redact.NewEditor(redact.SampleDocument(320, 200))
		e.Replay(redact.Drag(40, 30, 120+float64(rand.Intn(60)), 24))
		dataURL, err := capture.EncodeDataURL(e.ExportFlattened(), capture.PNG, 0)
		if err != nil {
			return "", err
		}
		p.ScreenshotDataURL = dataURL
	}

	v, err := ingest.Validate(p, ingest.DefaultMaxImageBytes)
	if err != nil {
		return "", err
	}
	r, err := store.Create(ctx, author, v)
	if err != nil {
		return "", err
	}

	for _, u := range users {
		if rand.Intn(3) == 0 {
			if _, err := store.ToggleUpvote(ctx, u, r.ID); err != nil {
				return r.ID, err
			}
		}
	}
	if rand.Intn(2) == 0 {
		if _, err := store.AddComment(ctx, users[rand.Intn(len(users))], r.ID, "Seeing this too."); err != nil {
			return r.ID, err
		}
	}
	switch rand.Intn(4) {
	case 0:
		err = store.SetStatus(ctx, triagerID, r.ID, database.StatusTriaged)
	case 1:
		err = store.SetStatus(ctx, triagerID, r.ID, database.StatusResolved)
	}
	return r.ID, err
}
