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

// The expiry worker closes out stale bookings. An active appointment whose
// day has fully passed was never completed or cancelled, so it is marked as
// a no-show. Like the reminder worker it drives the public API, which keeps
// every status change on the ledger with history and audit.

const (
	runLockName = "noshow-sweep"
	workerActor = "expiry-worker"
)

type worker struct {
	cfg    config.Config
	client *http.Client
	locker redisclient.Locker
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running expiry worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

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
			log.Println("shutdown signal received, stopping expiry worker")
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
		log.Println("another instance holds the expiry lock, skipping run")
		return
	}
	if err != nil {
		log.Printf("expiry run error: %v", err)
		return
	}
	log.Printf("expiry run complete in %s", time.Since(start))
}

// sweep finds appointments dated before today that are still active and
// marks each of them as a no-show.
func (w *worker) sweep(ctx context.Context) error {
	token, err := identity.IssueToken([]byte(w.cfg.JWTSecret), identity.Principal{ID: workerActor, Role: "service"}, w.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue worker token: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	appts, err := w.searchUpTo(ctx, token, cutoff)
	if err != nil {
		return err
	}

	expired := 0
	for _, appt := range appts {
		if !appt.active() {
			continue
		}
		if err := w.markNoShow(ctx, token, appt.AppointmentID); err != nil {
			log.Printf("failed to expire appointment %s: %v", appt.AppointmentID, err)
			continue
		}
		expired++
	}
	log.Printf("cutoff=%s candidates=%d marked_no_show=%d", cutoff, len(appts), expired)
	return nil
}

type apptView struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
}

func (a apptView) active() bool {
	return a.Status == "scheduled" || a.Status == "confirmed"
}

func (w *worker) searchUpTo(ctx context.Context, token, cutoff string) ([]apptView, error) {
	body, err := json.Marshal(map[string]string{"to": cutoff})
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

func (w *worker) markNoShow(ctx context.Context, token, appointmentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/no-show", w.cfg.APIBaseURL, appointmentID), nil)
	if err != nil {
		return fmt.Errorf("build no-show request: %w", err)
	}
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
