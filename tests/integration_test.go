package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hwlab/inventory/internal/adapter/storage"
	"github.com/hwlab/inventory/internal/core/domain"
	"github.com/hwlab/inventory/internal/core/service"
	"github.com/hwlab/inventory/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	store   *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/hwlab?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	ensureSchema(t, db)

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		store: storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func ensureSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hardware_sets (
			name VARCHAR(100) NOT NULL,
			description VARCHAR(255) NOT NULL DEFAULT '',
			total_capacity INT NOT NULL,
			checked_out INT NOT NULL DEFAULT 0,
			version INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (name)
		)`,
		`CREATE TABLE IF NOT EXISTS checkout_records (
			project_id VARCHAR(64) NOT NULL,
			hardware_name VARCHAR(100) NOT NULL,
			quantity INT NOT NULL,
			checked_out_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (project_id, hardware_name)
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(64) NOT NULL,
			name VARCHAR(100) NOT NULL,
			owner VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id)
		)`,
		`CREATE TABLE IF NOT EXISTS project_members (
			project_id VARCHAR(64) NOT NULL,
			username VARCHAR(64) NOT NULL,
			PRIMARY KEY (project_id, username)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id VARCHAR(36) NOT NULL,
			project_id VARCHAR(64) NOT NULL,
			hardware_name VARCHAR(100) NOT NULL,
			actor VARCHAR(64) NOT NULL,
			action VARCHAR(16) NOT NULL,
			quantity INT NOT NULL,
			available INT NOT NULL,
			occurred_at DATETIME NOT NULL,
			PRIMARY KEY (id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema setup failed: %v", err)
		}
	}
}

func (env *testEnv) seedProject(t *testing.T, ctx context.Context, projectID, owner string) {
	t.Helper()

	env.mysql.ExecContext(ctx, `
		INSERT IGNORE INTO projects (id, name, owner, created_at) VALUES (?, ?, ?, NOW())`,
		projectID, projectID, owner)
	env.mysql.ExecContext(ctx, `
		INSERT IGNORE INTO project_members (project_id, username) VALUES (?, ?)`,
		projectID, owner)
}

func (env *testEnv) resetHardware(t *testing.T, ctx context.Context, name string, capacity int) {
	t.Helper()

	if _, err := env.mysql.ExecContext(ctx, `
		INSERT INTO hardware_sets (name, description, total_capacity, checked_out, version, created_at, updated_at)
		VALUES (?, '', ?, 0, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE total_capacity = ?, checked_out = 0, version = 0`,
		name, capacity, capacity); err != nil {
		t.Fatalf("hardware setup failed: %v", err)
	}
	env.mysql.ExecContext(ctx, `DELETE FROM checkout_records WHERE hardware_name = ?`, name)
	env.mysql.ExecContext(ctx, `DELETE FROM ledger_events WHERE hardware_name = ?`, name)
	env.redis.Del(ctx, "availability:"+name)
}

func newService(env *testEnv) *service.ReservationService {
	return service.NewReservationService(env.store, env.cache, env.store, 100)
}

// Full flow against live MySQL and Redis: the lab handbook scenario plus the
// audit trail.
func TestIntegration_CheckoutScenario(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	hardware := "integration-arduino"

	env.resetHardware(t, ctx, hardware, 50)
	env.seedProject(t, ctx, "integration-proj-a", "alice")
	env.seedProject(t, ctx, "integration-proj-b", "bob")

	svc := newService(env)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ledgerWorker(svc.Events(), env.store)
	}()

	out := func(requestID, user, project string, quantity int) (*domain.CheckoutConfirmation, error) {
		return svc.CheckOut(ctx, service.CheckoutRequest{
			RequestID: requestID, Username: user, ProjectID: project,
			HardwareName: hardware, Quantity: quantity,
		})
	}
	in := func(requestID, user, project string, quantity int) (*domain.CheckinConfirmation, error) {
		return svc.CheckIn(ctx, service.CheckinRequest{
			RequestID: requestID, Username: user, ProjectID: project,
			HardwareName: hardware, Quantity: quantity,
		})
	}

	confA, err := out(uuid.NewString(), "alice", "integration-proj-a", 5)
	if err != nil || confA.Availability.Available != 45 {
		t.Fatalf("project A checkout: err=%v conf=%+v", err, confA)
	}

	confB, err := out(uuid.NewString(), "bob", "integration-proj-b", 10)
	if err != nil || confB.Availability.Available != 35 {
		t.Fatalf("project B checkout: err=%v conf=%+v", err, confB)
	}

	inA, err := in(uuid.NewString(), "alice", "integration-proj-a", 5)
	if err != nil || inA.Availability.Available != 40 {
		t.Fatalf("project A checkin: err=%v conf=%+v", err, inA)
	}

	_, err = in(uuid.NewString(), "bob", "integration-proj-b", 20)
	if !errors.Is(err, domain.ErrOverRelease) {
		t.Fatalf("expected ErrOverRelease for project B, got %v", err)
	}

	av, err := svc.GetAvailability(ctx, hardware)
	if err != nil {
		t.Fatalf("availability failed: %v", err)
	}
	if av.Available != 40 || av.CheckedOut != 10 {
		t.Errorf("expected 40 available / 10 checked out, got %d/%d", av.Available, av.CheckedOut)
	}

	// Project A's ledger entry is gone; project B's remains.
	var count int
	env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkout_records
		WHERE project_id = 'integration-proj-a' AND hardware_name = ?`, hardware).Scan(&count)
	if count != 0 {
		t.Error("expected project A record removed")
	}
	var held int
	env.mysql.QueryRowContext(ctx, `
		SELECT quantity FROM checkout_records
		WHERE project_id = 'integration-proj-b' AND hardware_name = ?`, hardware).Scan(&held)
	if held != 10 {
		t.Errorf("expected project B holding 10, got %d", held)
	}

	svc.Close()
	wg.Wait()

	// Three committed mutations, three audit events.
	var events int
	env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_events WHERE hardware_name = ?`, hardware).Scan(&events)
	if events != 3 {
		t.Errorf("expected 3 ledger events, got %d", events)
	}
}

func TestIntegration_ConcurrentNoOverAllocation(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	hardware := "integration-concurrent"
	capacity := 10
	requests := 30

	env.resetHardware(t, ctx, hardware, capacity)
	env.seedProject(t, ctx, "integration-proj-c", "carol")

	svc := newService(env)
	defer svc.Close()

	go func() {
		for range svc.Events() {
		}
	}()

	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckOut(ctx, service.CheckoutRequest{
				RequestID: uuid.NewString(), Username: "carol", ProjectID: "integration-proj-c",
				HardwareName: hardware, Quantity: 1,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientAvailability):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(capacity) {
		t.Errorf("expected exactly %d successes, got %d", capacity, successCount.Load())
	}
	if insufficientCount.Load() != int32(requests-capacity) {
		t.Errorf("expected %d insufficient failures, got %d", requests-capacity, insufficientCount.Load())
	}

	var checkedOut, total int
	env.mysql.QueryRowContext(ctx, `
		SELECT checked_out, total_capacity FROM hardware_sets WHERE name = ?`, hardware).Scan(&checkedOut, &total)
	if checkedOut != total {
		t.Errorf("expected checked_out == total_capacity (%d), got %d", total, checkedOut)
	}
}

func TestIntegration_IdempotencyPreventsDoubleCheckout(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	hardware := "integration-idempotency"
	requestID := "same-request-" + uuid.NewString()

	env.resetHardware(t, ctx, hardware, 10)
	env.seedProject(t, ctx, "integration-proj-d", "dave")
	env.redis.Del(ctx, "request:"+requestID)

	svc := newService(env)
	defer svc.Close()

	go func() {
		for range svc.Events() {
		}
	}()

	req := service.CheckoutRequest{
		RequestID: requestID, Username: "dave", ProjectID: "integration-proj-d",
		HardwareName: hardware, Quantity: 1,
	}
	if _, err := svc.CheckOut(ctx, req); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	_, err := svc.CheckOut(ctx, req)
	if !errors.Is(err, service.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got %v", err)
	}

	var checkedOut int
	env.mysql.QueryRowContext(ctx, `
		SELECT checked_out FROM hardware_sets WHERE name = ?`, hardware).Scan(&checkedOut)
	if checkedOut != 1 {
		t.Errorf("expected a single decrement, checked_out = %d", checkedOut)
	}
}

func TestIntegration_CapacityUpdateKeepsInvariant(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	hardware := "integration-capacity"

	env.resetHardware(t, ctx, hardware, 10)
	env.seedProject(t, ctx, "integration-proj-e", "erin")

	svc := newService(env)
	defer svc.Close()

	go func() {
		for range svc.Events() {
		}
	}()

	if _, err := svc.CheckOut(ctx, service.CheckoutRequest{
		RequestID: uuid.NewString(), Username: "erin", ProjectID: "integration-proj-e",
		HardwareName: hardware, Quantity: 6,
	}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if _, err := svc.UpdateCapacity(ctx, hardware, 5); !errors.Is(err, domain.ErrCapacityBelowCheckout) {
		t.Fatalf("expected ErrCapacityBelowCheckout, got %v", err)
	}

	av, err := svc.UpdateCapacity(ctx, hardware, 20)
	if err != nil {
		t.Fatalf("capacity update failed: %v", err)
	}
	if av.TotalCapacity != 20 || av.CheckedOut != 6 || av.Available != 14 {
		t.Errorf("unexpected availability after update: %+v", av)
	}
}

func ledgerWorker(events <-chan domain.LedgerEvent, repo port.InventoryRepository) {
	for ev := range events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		repo.AppendLedgerEvent(ctx, ev)
		cancel()
	}
}
