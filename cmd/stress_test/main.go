package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hwlab/inventory/internal/adapter/storage"
	"github.com/hwlab/inventory/internal/core/service"
)

const (
	hardwareName  = "stress-test-rig"
	projectID     = "stress-test-project"
	username      = "stress-user"
	totalCapacity = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/hwlab?parseTime=true"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	if err := seed(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed test data")
	}
	rdb.Del(ctx, "availability:"+hardwareName)

	store := storage.NewMySQLAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	reservations := service.NewReservationService(store, cache, store, queueSize)
	defer reservations.Close()

	// Drain the audit queue in background
	go func() {
		for range reservations.Events() {
		}
	}()

	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent checkouts of one unit each
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := reservations.CheckOut(ctx, service.CheckoutRequest{
				RequestID:    uuid.NewString(),
				Username:     username,
				ProjectID:    projectID,
				HardwareName: hardwareName,
				Quantity:     1,
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Capacity:   %d\n", totalCapacity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(totalCapacity) && fail == int32(totalRequests-totalCapacity) {
		fmt.Printf("PASS: Exactly %d checkouts succeeded, %d failed\n", totalCapacity, totalRequests-totalCapacity)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			totalCapacity, totalRequests-totalCapacity, success, fail)
	}

	av, err := reservations.GetAvailability(ctx, hardwareName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read final availability")
	}
	fmt.Printf("Final Availability: %d (checked out %d of %d)\n", av.Available, av.CheckedOut, av.TotalCapacity)

	if av.Available == 0 && av.CheckedOut == totalCapacity {
		fmt.Println("PASS: Capacity fully checked out, no over-allocation")
	} else {
		fmt.Printf("FAIL: Expected 0 available/%d checked out, got %d/%d\n",
			totalCapacity, av.Available, av.CheckedOut)
	}
}

// seed resets the hardware set and the test project to a known state.
func seed(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM checkout_records WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM ledger_events WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO hardware_sets (name, description, total_capacity, checked_out, version, created_at, updated_at)
		VALUES (?, 'stress test hardware', ?, 0, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE total_capacity = ?, checked_out = 0, version = 0`,
		hardwareName, totalCapacity, totalCapacity); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT IGNORE INTO projects (id, name, owner, created_at) VALUES (?, 'Stress Test', ?, NOW())`,
		projectID, username); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT IGNORE INTO project_members (project_id, username) VALUES (?, ?)`,
		projectID, username); err != nil {
		return err
	}
	return nil
}
