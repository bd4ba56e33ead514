// Command leadwatch is a console agent: it shows the agent's lead pools with
// live countdowns and claims, cancels or updates leads from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leaddesk/internal/client"
	"leaddesk/internal/leads"
	"leaddesk/internal/logging"
	"leaddesk/internal/protocol"
	"leaddesk/internal/realtime"
	"leaddesk/internal/timer"
)

var version = "dev"

type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *consoleNotifier) Success(msg string) { n.printf("ok: %s\n", msg) }
func (n *consoleNotifier) Failure(msg string) { n.printf("error: %s\n", msg) }

func (n *consoleNotifier) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, format, args...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", getEnv("LEADDESK_API_URL", "http://localhost:8000/api"), "REST base URL")
	wsURL := flag.String("ws", getEnv("LEADDESK_WS_URL", "ws://localhost:8000/ws"), "socket URL")
	username := flag.String("user", os.Getenv("LEADDESK_USER"), "agent username")
	password := flag.String("password", os.Getenv("LEADDESK_PASSWORD"), "agent password")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger := logging.New("text", *verbose, os.Stderr, version)
	logger.SetAsDefault()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "leadwatch: -user and -password are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*apiURL, nil)
	me, err := api.Login(ctx, *username, *password)
	if err != nil {
		logger.LogError("login failed", err, "user", *username)
		os.Exit(1)
	}
	if me.Role != "agent" {
		logger.Warn("logged in user is not an agent, lead actions will be refused", "role", me.Role)
	}

	out := &consoleNotifier{out: os.Stdout}
	cache := leads.NewCache(api, logger.Logger)
	defer cache.Close()

	arena := timer.NewArena(func(int64) { cache.Invalidate() }, timer.WithLogger(logger.Logger))
	defer arena.StopAll()

	coord := leads.NewCoordinator(api, cache, out, logger.Logger)

	w := &watcher{out: out, cache: cache, arena: arena, coord: coord}
	cache.Subscribe(w.onSnapshot)
	coord.OnTabChange(w.onTab)

	manager := realtime.NewManager(*wsURL, api.Token(), logger.Logger)
	manager.Subscribe(func(e protocol.Event) {
		switch ev := e.(type) {
		case protocol.Connected:
			// joins do not survive a reconnect
			if err := manager.JoinNotificationRoom(me.ID); err != nil {
				logger.LogError("join notification room", err)
			}
			cache.Invalidate()
		case protocol.LeadUpdated:
			logger.Debug("lead updated", "lead_id", ev.LeadID, "action", ev.Action)
			cache.Invalidate()
		case protocol.NewNotification:
			out.printf("notification: %s: %s\n", ev.Notification.Title, ev.Notification.Message)
		case protocol.Disconnected:
			logger.Warn("realtime disconnected", "error", ev.Err)
		case protocol.Error:
			logger.Warn("realtime error", "event", ev.Event, "message", ev.Message)
		}
	})
	go manager.Run(ctx)

	if err := cache.Refetch(ctx); err != nil {
		logger.LogError("initial lead fetch failed", err)
	}

	out.printf("logged in as %s (id %d). commands: list, claim <id>, cancel <id>, status <id> <label>, tab active|fallback, quit\n", me.Username, me.ID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := w.command(ctx, line); quit {
				return
			}
		}
	}
}

type watcher struct {
	out   *consoleNotifier
	cache *leads.Cache
	arena *timer.Arena
	coord *leads.Coordinator
}

func (w *watcher) visible(s leads.Snapshot) []*leads.Lead {
	active, fallback := s.Partition()
	if w.coord.Tab() == leads.TabActive {
		return active
	}
	return fallback
}

func (w *watcher) onSnapshot(s leads.Snapshot) {
	w.arena.Sync(string(w.coord.Tab()), leads.Seeds(w.visible(s)))
	w.render(s)
}

func (w *watcher) onTab(tab leads.Tab) {
	s := w.cache.Snapshot()
	w.arena.Sync(string(tab), leads.Seeds(w.visible(s)))
	w.render(s)
}

func (w *watcher) render(s leads.Snapshot) {
	active, fallback := s.Partition()
	countdowns := w.arena.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "-- tab %s: %d active, %d fallback\n", w.coord.Tab(), len(active), len(fallback))
	for _, l := range w.visible(s) {
		left, ok := countdowns[l.ID]
		clock := "-"
		if ok {
			clock = timer.Format(left)
		}
		marker := " "
		if l.ID == w.coord.ClaimingID() {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s #%d post %d  %s %s  %-10s %-9s %s\n",
			marker, l.ID, l.PostID, l.Date, l.Time, l.Status, l.Phase(time.Now()), clock)
	}
	w.out.printf("%s", b.String())
}

func (w *watcher) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	leadID := func() (int64, bool) {
		if len(fields) < 2 {
			w.out.Failure(fields[0] + " needs a lead id")
			return 0, false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			w.out.Failure("bad lead id " + strconv.Quote(fields[1]))
			return 0, false
		}
		return id, true
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "list":
		w.render(w.cache.Snapshot())
	case "claim":
		if id, ok := leadID(); ok {
			_ = w.coord.Claim(ctx, id)
		}
	case "cancel":
		if id, ok := leadID(); ok {
			_ = w.coord.Cancel(ctx, id)
		}
	case "status":
		if id, ok := leadID(); ok {
			if len(fields) < 3 {
				w.out.Failure("status needs a label")
				return false
			}
			_ = w.coord.UpdateStatus(ctx, id, strings.Join(fields[2:], " "))
		}
	case "tab":
		if len(fields) < 2 || (fields[1] != string(leads.TabActive) && fields[1] != string(leads.TabFallback)) {
			w.out.Failure("tab must be active or fallback")
			return false
		}
		w.coord.SetTab(leads.Tab(fields[1]))
	default:
		w.out.Failure("unknown command " + strconv.Quote(fields[0]))
	}
	return false
}
