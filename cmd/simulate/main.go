package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/config"
	"github.com/hackgods/hms-appointments/internal/db"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	EMRRatio     float64
	SearchRatio  float64
	ReadRatio    float64
	PetLimit     int
	TodayShare   float64
	Keystroke    time.Duration
	StaffID      string
	PostgresDSN  string
	Location     *time.Location
}

var visitReasons = []string{"annual checkup", "vaccination follow-up", "skin irritation", "limping", "dental cleaning", "loss of appetite"}

type pet struct {
	PetID   string
	OwnerID string
	Name    string
}

type staff struct {
	EntityID     string
	AssignmentID string
}

type booked struct {
	ID    uuid.UUID
	Date  string
	Today bool
}

type DataPool struct {
	Pets  []pet
	Staff []staff

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record buckets an HTTP status: 409 is contention, 422 a business-rule
// rejection, anything else unexpected is an error.
func (om *OperationMetrics) Record(latency time.Duration, status int, ok bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case ok:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

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

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Search       OperationMetrics
	Slots        OperationMetrics
	Booking      OperationMetrics
	Confirm      OperationMetrics
	IssueOTP     OperationMetrics
	VerifyOTP    OperationMetrics
	Consultation OperationMetrics
	ReadByID     OperationMetrics
	ListByEntity OperationMetrics

	Keystrokes int64
	Lookups    int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

func main() {
	cfg := loadConfig()

	logg, err := logger.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logg.Fatal("invalid config", zap.Error(err))
	}

	logg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("emr", cfg.EMRRatio),
		zap.Float64("search", cfg.SearchRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logg.Fatal("load data pool", zap.Error(err))
	}
	logg.Info("data pool loaded", zap.Int("pets", len(dataPool.Pets)), zap.Int("staff", len(dataPool.Staff)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logg,
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
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.35),
		EMRRatio:     getFloat("SIM_EMR_RATIO", 0.25),
		SearchRatio:  getFloat("SIM_SEARCH_RATIO", 0.15),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.25),
		PetLimit:     getInt("SIM_PET_LIMIT", 4000),
		TodayShare:   getFloat("SIM_TODAY_SHARE", 0.3),
		Keystroke:    getDuration("SIM_KEYSTROKE", 60*time.Millisecond),
		StaffID:      getEnv("SIM_STAFF_ID", "U-SIMULATOR"),
		PostgresDSN:  baseCfg.PostgresDSN,
		Location:     baseCfg.Location,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.EMRRatio + cfg.SearchRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.EMRRatio /= total
		cfg.SearchRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT p.pet_platform_id, p.user_platform_id, p.name
		FROM pet_master p
		JOIN profiles o ON o.user_platform_id = p.user_platform_id
		WHERE p.is_active
		LIMIT $1
	`, cfg.PetLimit)
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}
	pets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pet, error) {
		var p pet
		err := row.Scan(&p.PetID, &p.OwnerID, &p.Name)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT entity_platform_id, assignment_id
		FROM staff_assignments
		WHERE is_active
	`)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	staffRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[staff])
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}

	if len(pets) == 0 {
		return nil, fmt.Errorf("no bookable pets loaded")
	}
	if len(staffRows) == 0 {
		return nil, fmt.Errorf("no staff loaded")
	}
	return &DataPool{Pets: pets, Staff: staffRows}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.EMRRatio:
			s.doEMRFlow(ctx, rng)
		case r < s.config.BookingRatio+s.config.EMRRatio+s.config.SearchRatio:
			s.doTypeahead(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doListByEntity(ctx, rng)
			}
		}
	}
}

// call issues one JSON request and decodes a 2xx body into out when given.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) (int, time.Duration, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rdr)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Staff-ID", s.config.StaffID)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) pickDate(rng *rand.Rand) (string, bool) {
	now := time.Now().In(s.config.Location)
	if rng.Float64() < s.config.TodayShare {
		return now.Format(time.DateOnly), true
	}
	return now.AddDate(0, 0, 1+rng.Intn(7)).Format(time.DateOnly), false
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Pets[rng.Intn(len(s.pool.Pets))]
	st := s.pool.Staff[rng.Intn(len(s.pool.Staff))]
	date, today := s.pickDate(rng)

	var slots struct {
		Items []directory.Slot `json:"items"`
	}
	path := fmt.Sprintf("/directory/entities/%s/staff/%s/slots?date=%s",
		url.PathEscape(st.EntityID), url.PathEscape(st.AssignmentID), date)
	status, latency, err := s.call(ctx, http.MethodGet, path, nil, &slots)
	s.metrics.Slots.Record(latency, status, err == nil && status == http.StatusOK)
	if err != nil || status != http.StatusOK {
		return
	}

	var open []string
	for _, sl := range slots.Items {
		if sl.Available {
			open = append(open, sl.Time)
		}
	}
	if len(open) == 0 {
		return
	}

	req := map[string]string{
		"pet_platform_id":     p.PetID,
		"owner_platform_id":   p.OwnerID,
		"entity_platform_id":  st.EntityID,
		"staff_assignment_id": st.AssignmentID,
		"appointment_date":    date,
		"appointment_time":    open[rng.Intn(len(open))],
		"appointment_type":    "routine",
		"reason":              gofakeit.RandomString(visitReasons),
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err = s.call(ctx, http.MethodPost, "/appointments", req, &created)
	ok := err == nil && status == http.StatusCreated
	s.metrics.Booking.Record(latency, status, ok)
	if ok && created.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: created.ID, Date: date, Today: today})
	}
}

// doEMRFlow runs self-service issue and verify, then a consultation when the
// appointment is for today.
func (s *Simulator) doEMRFlow(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	base := "/appointments/" + appt.ID.String()

	if rng.Intn(4) == 0 {
		status, latency, err := s.call(ctx, http.MethodPost, base+"/confirm", nil, nil)
		s.metrics.Confirm.Record(latency, status, err == nil && status == http.StatusOK)
	}

	var issued struct {
		Code string `json:"otp_code"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, base+"/otp", map[string]bool{"self_service": true}, &issued)
	s.metrics.IssueOTP.Record(latency, status, err == nil && status == http.StatusOK)
	if err != nil || status != http.StatusOK || issued.Code == "" {
		return
	}

	status, latency, err = s.call(ctx, http.MethodPost, base+"/otp/verify", map[string]string{"otp_code": issued.Code}, nil)
	s.metrics.VerifyOTP.Record(latency, status, err == nil && status == http.StatusOK)
	if err != nil || status != http.StatusOK || !appt.Today {
		return
	}

	status, latency, err = s.call(ctx, http.MethodPost, base+"/consultation/start", nil, nil)
	s.metrics.Consultation.Record(latency, status, err == nil && status == http.StatusOK)
	if err != nil || status != http.StatusOK {
		return
	}
	status, latency, err = s.call(ctx, http.MethodPost, base+"/consultation/end", nil, nil)
	s.metrics.Consultation.Record(latency, status, err == nil && status == http.StatusOK)
}

// doTypeahead types a pet name one key at a time through the search
// debouncer, the way the dashboard search box does.
func (s *Simulator) doTypeahead(ctx context.Context, rng *rand.Rand) {
	name := s.pool.Pets[rng.Intn(len(s.pool.Pets))].Name
	if len([]rune(name)) < directory.MinQueryLength {
		return
	}

	type result struct {
		status  int
		latency time.Duration
	}
	done := make(chan result, 1)

	deb := directory.NewDebouncer(ctx, directory.DefaultDebounce,
		func(ctx context.Context, q string) (result, error) {
			atomic.AddInt64(&s.metrics.Lookups, 1)
			status, latency, err := s.call(ctx, http.MethodGet, "/directory/search?q="+url.QueryEscape(q), nil, nil)
			return result{status: status, latency: latency}, err
		},
		func(_ string, res result, err error) {
			if err != nil {
				res.status = 0
			}
			select {
			case done <- res:
			default:
			}
		},
	)
	defer deb.Stop()

	runes := []rune(name)
	for i := 1; i <= len(runes); i++ {
		atomic.AddInt64(&s.metrics.Keystrokes, 1)
		deb.Submit(string(runes[:i]))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.Keystroke):
		}
	}

	select {
	case res := <-done:
		s.metrics.Search.Record(res.latency, res.status, res.status == http.StatusOK)
	case <-ctx.Done():
	}
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+appt.ID.String(), nil, nil)
	s.metrics.ReadByID.Record(latency, status, err == nil && status == http.StatusOK)
}

func (s *Simulator) doListByEntity(ctx context.Context, rng *rand.Rand) {
	st := s.pool.Staff[rng.Intn(len(s.pool.Staff))]
	path := fmt.Sprintf("/appointments?entity_id=%s&limit=20&offset=0", url.QueryEscape(st.EntityID))
	status, latency, err := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.ListByEntity.Record(latency, status, err == nil && status == http.StatusOK)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Directory search", &s.metrics.Search)
	keys, lookups := atomic.LoadInt64(&s.metrics.Keystrokes), atomic.LoadInt64(&s.metrics.Lookups)
	if keys > 0 {
		fmt.Printf("  Debounce: %d keystrokes -> %d lookups\n\n", keys, lookups)
	}
	printOperationReport("Slot lookup", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Issue OTP", &s.metrics.IssueOTP)
	printOperationReport("Verify OTP", &s.metrics.VerifyOTP)
	printOperationReport("Consultation", &s.metrics.Consultation)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Entity", &s.metrics.ListByEntity)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, pct(errs))
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
