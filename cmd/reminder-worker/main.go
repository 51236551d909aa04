package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/identity"
	redisclient "github.com/careledger/careledger/internal/redis"
)

// The worker goes through the gateway like any other client. The ledger
// state lives inside the api-server process, so there is nothing to reach
// directly, and driving the public operations means reminders land on the
// ledger with full history and audit like every other write.

const (
	runLockName  = "reminder-sweep"
	reminderType = "upcoming"
	workerActor  = "reminder-worker"
)

type worker struct {
	cfg    config.Config
	client *http.Client
	locker redisclient.Locker
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s interval=%s lead=%s", cfg.Env, cfg.WorkerInterval, cfg.ReminderLead)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	w := &worker{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		locker: redisclient.NewRedisRunLocker(rdb, cfg.LockTTL),
	}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	err := w.locker.WithRunLock(runCtx, runLockName, w.sweep)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		log.Println("another instance holds the reminder lock, skipping run")
		return
	}
	if err != nil {
		log.Printf("reminder run error: %v", err)
		return
	}
	log.Printf("reminder run complete in %s", time.Since(start))
}

// sweep finds active appointments inside the reminder window and sends one
// reminder of the configured type to each that has not had it yet.
func (w *worker) sweep(ctx context.Context) error {
	token, err := identity.IssueToken([]byte(w.cfg.JWTSecret), identity.Principal{ID: workerActor, Role: "service"}, w.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue worker token: %w", err)
	}

	now := time.Now().UTC()
	from := now.Format("2006-01-02")
	to := now.Add(w.cfg.ReminderLead).Format("2006-01-02")

	appts, err := w.searchWindow(ctx, token, from, to)
	if err != nil {
		return err
	}

	sent := 0
	for _, appt := range appts {
		if !appt.active() || appt.hasReminder(reminderType) {
			continue
		}
		if err := w.sendReminder(ctx, token, appt.AppointmentID); err != nil {
			log.Printf("failed to remind appointment %s: %v", appt.AppointmentID, err)
			continue
		}
		sent++
	}
	log.Printf("window=%s..%s candidates=%d reminders_sent=%d", from, to, len(appts), sent)
	return nil
}

type apptView struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
	RemindersSent []struct {
		Type string `json:"type"`
	} `json:"remindersSent"`
}

func (a apptView) active() bool {
	return a.Status == "scheduled" || a.Status == "confirmed"
}

func (a apptView) hasReminder(rtype string) bool {
	for _, r := range a.RemindersSent {
		if r.Type == rtype {
			return true
		}
	}
	return false
}

func (w *worker) searchWindow(ctx context.Context, token, from, to string) ([]apptView, error) {
	body, err := json.Marshal(map[string]string{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("marshal search filters: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.APIBaseURL+"/appointments/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search appointments: status %d: %s", resp.StatusCode, payload)
	}

	var appts []apptView
	if err := json.NewDecoder(resp.Body).Decode(&appts); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return appts, nil
}

func (w *worker) sendReminder(ctx context.Context, token, appointmentID string) error {
	body, err := json.Marshal(map[string]string{"reminder_type": reminderType})
	if err != nil {
		return fmt.Errorf("marshal reminder request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/reminders", w.cfg.APIBaseURL, appointmentID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build reminder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload)
	}
	return nil
}
