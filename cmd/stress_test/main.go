package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/adapter/storage"
	"github.com/polyshop/backoffice/internal/config"
	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/core/service"
)

const totalRequests = 50

// Fires concurrent cancels and admin completions at one PENDING order.
// Both moves lead to a terminal status, so exactly one may win.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)

	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	userID, productID := seed(ctx, db)
	defer cleanup(db, userID, productID)

	adapter, err := storage.NewMySQLAdapter(db)
	if err != nil {
		log.Fatalf("failed to init adapter: %v", err)
	}
	orderService := service.NewOrderService(storage.NewTxScope(db), adapter, adapter)

	owner := domain.Identity{UserID: userID, Role: domain.RoleUser}
	admin := domain.Identity{UserID: userID, Role: domain.RoleAdmin}

	orderID, err := orderService.CreateOrder(ctx, owner, domain.CreateOrderRequest{
		PaymentMethod: "COD",
		TotalAmount:   decimal.NewFromInt(10),
		Items:         []domain.OrderItemRequest{{ProductID: productID, Quantity: 1, Price: decimal.NewFromInt(10)}},
	})
	if err != nil {
		log.Fatalf("failed to create order: %v", err)
	}

	// Counters
	var successCount, rejectedCount, conflictCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			var err error
			if n%2 == 0 {
				_, err = orderService.CancelOrder(ctx, owner, orderID)
			} else {
				_, err = orderService.UpdateOrderStatus(ctx, admin, orderID, string(domain.OrderStatusCompleted))
			}

			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInvalidStateTransition):
				rejectedCount.Add(1)
			case errors.Is(err, domain.ErrConcurrentUpdate):
				conflictCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := orderService.GetOrder(ctx, admin, orderID)
	if err != nil {
		log.Fatalf("failed to reload order: %v", err)
	}

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Applied:          %d\n", successCount.Load())
	fmt.Printf("Rejected:         %d\n", rejectedCount.Load())
	fmt.Printf("Version Conflict: %d\n", conflictCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Final Status:     %s (version %d)\n", final.Status, final.Version)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if successCount.Load() == 1 {
		fmt.Println("PASS: exactly one transition applied")
	} else {
		fmt.Printf("FAIL: expected 1 applied transition, got %d\n", successCount.Load())
	}
	if final.Version == 1 {
		fmt.Println("PASS: order row written once")
	} else {
		fmt.Printf("FAIL: expected version 1, got %d\n", final.Version)
	}
}

func seed(ctx context.Context, db *sql.DB) (int64, int64) {
	res, err := db.ExecContext(ctx, `INSERT INTO tbl_user (username, email) VALUES (?, ?)`,
		fmt.Sprintf("stress-%d", time.Now().UnixNano()), "stress@example.com")
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	userID, _ := res.LastInsertId()

	res, err = db.ExecContext(ctx, `INSERT INTO tbl_product (product_name, price) VALUES ('stress-product', 10)`)
	if err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	productID, _ := res.LastInsertId()
	return userID, productID
}

func cleanup(db *sql.DB, userID, productID int64) {
	db.Exec(`DELETE FROM tbl_order WHERE user_id = ?`, userID)
	db.Exec(`DELETE FROM tbl_user WHERE id = ?`, userID)
	db.Exec(`DELETE FROM tbl_product WHERE id = ?`, productID)
}
