package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/identity"
)

// simulate drives the gateway with concurrent appointment traffic and
// reports per-operation success, conflict, and latency numbers. The doctor
// pool is kept deliberately small so concurrent bookings collide and the
// conflict handling actually gets exercised.

type SimConfig struct {
	APIBaseURL    string
	JWTSecret     string
	Duration      time.Duration
	Workers       int
	ScheduleRatio float64
	ConfirmRatio  float64
	ModifyRatio   float64
	ReadRatio     float64
	Doctors       int
	Patients      int
	Days          int
}

type DataPool struct {
	Doctors  []string
	Patients []string

	mu           sync.RWMutex
	appointments []string // ids of successfully scheduled appointments
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Failed    int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Failed, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Schedule       OperationMetrics
	Confirm        OperationMetrics
	Cancel         OperationMetrics
	Reschedule     OperationMetrics
	ReadByID       OperationMetrics
	ListByPatient  OperationMetrics
	DoctorSchedule OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	metrics Metrics
}

var slotStarts = buildSlotGrid()

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d schedule=%.2f confirm=%.2f modify=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.ScheduleRatio, cfg.ConfirmRatio, cfg.ModifyRatio, cfg.ReadRatio)

	token, err := identity.IssueToken([]byte(cfg.JWTSecret), identity.Principal{ID: "simulator", Role: "service"}, cfg.Duration+time.Minute)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	sim := &Simulator{
		config: cfg,
		pool: &DataPool{
			Doctors:  makeIDs("DOC", cfg.Doctors),
			Patients: makeIDs("PAT", cfg.Patients),
		},
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", baseCfg.APIBaseURL),
		JWTSecret:     baseCfg.JWTSecret,
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ScheduleRatio: getFloat("SIM_SCHEDULE_RATIO", 0.4),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.15),
		ModifyRatio:   getFloat("SIM_MODIFY_RATIO", 0.15),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		Doctors:       getInt("SIM_DOCTORS", 10),
		Patients:      getInt("SIM_PATIENTS", 500),
		Days:          getInt("SIM_DAYS", 7),
	}

	// Normalize ratios
	total := cfg.ScheduleRatio + cfg.ConfirmRatio + cfg.ModifyRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ScheduleRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ModifyRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Doctors <= 0 || cfg.Patients <= 0 {
		return fmt.Errorf("SIM_DOCTORS and SIM_PATIENTS must be > 0")
	}
	return nil
}

func makeIDs(prefix string, count int) []string {
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%04d", prefix, i+1)
	}
	return ids
}

// buildSlotGrid lists 30-minute starts between 09:00 and 17:00.
func buildSlotGrid() []int {
	var grid []int
	for m := 9 * 60; m < 17*60; m += 30 {
		grid = append(grid, m)
	}
	return grid
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.ScheduleRatio:
				s.doSchedule(ctx, rng)
			case r < s.config.ScheduleRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.ScheduleRatio+s.config.ConfirmRatio+s.config.ModifyRatio:
				if rng.Intn(2) == 0 {
					s.doCancel(ctx, rng)
				} else {
					s.doReschedule(ctx, rng)
				}
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doDoctorSchedule(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) (date, start, end string) {
	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.Days))
	startMin := slotStarts[rng.Intn(len(slotStarts))]
	return day.Format("2006-01-02"), clock(startMin), clock(startMin + 30)
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	date, start, end := s.randomSlot(rng)
	id := "SIM-" + uuid.NewString()

	body := map[string]any{
		"appointment_id":   id,
		"patient_id":       s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		"doctor_id":        s.pool.Doctors[rng.Intn(len(s.pool.Doctors))],
		"appointment_date": date,
		"start_time":       start,
		"end_time":         end,
		"reason":           map[string]string{"purpose": "Simulated visit", "urgency": "normal"},
	}

	status, _, latency := s.post(ctx, "/appointments", body)
	success := status == http.StatusCreated
	if success {
		s.pool.AddAppointment(id)
	}
	s.metrics.Schedule.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	body := map[string]string{"confirmer_id": "SIM-STAFF"}
	status, _, latency := s.post(ctx, "/appointments/"+id+"/confirm", body)
	s.metrics.Confirm.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	body := map[string]string{"canceller_id": "SIM-STAFF", "reason": "simulated cancellation"}
	status, _, latency := s.post(ctx, "/appointments/"+id+"/cancel", body)
	s.metrics.Cancel.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	date, start, end := s.randomSlot(rng)

	body := map[string]string{"new_date": date, "new_start_time": start, "new_end_time": end, "reason": "simulated reschedule"}
	status, respBody, latency := s.post(ctx, "/appointments/"+id+"/reschedule", body)

	success := status == http.StatusCreated
	if success {
		var result struct {
			New struct {
				AppointmentID string `json:"appointmentId"`
			} `json:"new"`
		}
		if err := json.Unmarshal(respBody, &result); err == nil && result.New.AppointmentID != "" {
			s.pool.AddAppointment(result.New.AppointmentID)
		}
	}
	s.metrics.Reschedule.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, latency := s.get(ctx, "/appointments/"+id)
	s.metrics.ReadByID.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	status, latency := s.get(ctx, "/appointments?patient_id="+patientID)
	s.metrics.ListByPatient.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doDoctorSchedule(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date, _, _ := s.randomSlot(rng)

	status, latency := s.get(ctx, "/doctors/"+doctorID+"/schedule?date="+date)
	s.metrics.DoctorSchedule.Record(latency, status == http.StatusOK, false)
}

// post sends an authenticated JSON request and returns status, body, latency.
// A transport error reports as status 0.
func (s *Simulator) post(ctx context.Context, path string, body any) (int, []byte, time.Duration) {
	data, _ := json.Marshal(body)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, time.Since(start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, latency
}

func (s *Simulator) get(ctx context.Context, path string) (int, time.Duration) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, time.Since(start)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, latency
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Schedule", &s.metrics.Schedule)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Doctor Schedule", &s.metrics.DoctorSchedule)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Failed)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
