package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inayat82/pos-backoffice/config"
	"github.com/inayat82/pos-backoffice/models"
	"github.com/inayat82/pos-backoffice/utils"
)

// setupIntegration boots MySQL and Redis in throwaway docker containers
// and wires the config globals to them. Skips unless INTEGRATION_TESTS
// is set.
func setupIntegration(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "pos_backoffice_test")
	// No event publishing in tests.
	t.Setenv("SALES_EVENTS_TOPIC", "")
	t.Setenv("ALLOW_FALLBACK_INVOICE_NUMBERS", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
}

// newTenantContext registers a fresh admin and returns a context scoped
// to it. Every caller gets its own counter namespace.
func newTenantContext(t *testing.T, name string) (context.Context, *models.Admin) {
	t.Helper()
	ctx := context.Background()
	admin, err := models.CreateAdmin(ctx, &models.NewAdmin{
		Name:     name,
		Email:    fmt.Sprintf("%s-%d@test.local", strings.ToLower(name), time.Now().UnixNano()),
		Password: "secret-pw-1",
	})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	ctx = utils.SetAdminIdInContext(ctx, admin.ID)
	ctx = utils.SetUsernameInContext(ctx, admin.Email)
	return ctx, admin
}

func seedProduct(t *testing.T, ctx context.Context, name, sku, price string, stock int) *models.Product {
	t.Helper()
	sellPrice, err := utils.ParseDecimal(price)
	if err != nil {
		t.Fatalf("parse price: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      name,
		Sku:       sku,
		SellPrice: sellPrice,
		StockQty:  stock,
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", sku, err)
	}
	return product
}

func TestSaleCommitFlow(t *testing.T) {
	setupIntegration(t)
	ctx, admin := newTenantContext(t, "CommitFlow")
	db := config.GetDB()

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)
	tea := seedProduct(t, ctx, "Tea", "TEA-001", "5.00", 1)

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Walk-in Regular"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	// Pre-seed the sale counter at 7 so the next claim must render S08.
	if err := db.Exec(
		"INSERT INTO counters (admin_id, type, count, updated_at) VALUES (?, 'sale', 7, NOW())",
		admin.ID,
	).Error; err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	sale, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerId:    customer.ID,
		PaymentMethod: models.PaymentMethodCash,
		Items: []models.NewSaleItem{
			{ProductId: coffee.ID, Quantity: 2},
			{ProductId: tea.ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("SubmitSale: %v", err)
	}

	if sale.InvoiceNumber != "S08" {
		t.Fatalf("expected invoice S08, got %s", sale.InvoiceNumber)
	}
	if sale.SequenceNo != 8 {
		t.Fatalf("expected sequence 8, got %d", sale.SequenceNo)
	}
	if sale.CustomerName != "Walk-in Regular" {
		t.Fatalf("expected resolved customer name, got %q", sale.CustomerName)
	}
	if sale.TotalItems != 2 || sale.TotalQuantity != 3 {
		t.Fatalf("expected 2 items / quantity 3, got %d / %d", sale.TotalItems, sale.TotalQuantity)
	}
	if sale.TotalAmount.String() != "25" {
		t.Fatalf("expected total 25, got %s", sale.TotalAmount.String())
	}
	if len(sale.Items) != 2 || sale.Items[0].ProductSku != "COF-001" || sale.Items[0].SellPrice.String() != "10" {
		t.Fatalf("unexpected item snapshot: %+v", sale.Items)
	}

	after, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.StockQty != 8 {
		t.Fatalf("expected coffee stock 8, got %d", after.StockQty)
	}

	next, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "Cash Sale",
		PaymentMethod: models.PaymentMethodCard,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("second SubmitSale: %v", err)
	}
	if next.InvoiceNumber != "S09" {
		t.Fatalf("expected invoice S09, got %s", next.InvoiceNumber)
	}
}

func TestSaleCommitRollsBackOnInsufficientStock(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newTenantContext(t, "Rollback")

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)
	tea := seedProduct(t, ctx, "Tea", "TEA-001", "5.00", 1)

	// Second line overdraws tea, so the whole sale must abort.
	_, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "Oversell",
		PaymentMethod: models.PaymentMethodCash,
		Items: []models.NewSaleItem{
			{ProductId: coffee.ID, Quantity: 2},
			{ProductId: tea.ID, Quantity: 3},
		},
	})
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("expected ErrorInsufficientStock, got %v", err)
	}

	coffeeAfter, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct(coffee): %v", err)
	}
	if coffeeAfter.StockQty != 10 {
		t.Fatalf("coffee stock must be untouched after rollback, got %d", coffeeAfter.StockQty)
	}

	connection, err := models.ListSales(ctx, 10, nil)
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(connection.Edges) != 0 {
		t.Fatalf("no sale row may survive the rollback, got %d", len(connection.Edges))
	}

	// The counter claim rolled back with the transaction.
	counter, err := models.GetCounter(ctx, models.CounterTypeSale)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if counter.Count != 0 {
		t.Fatalf("counter must be untouched after rollback, got %d", counter.Count)
	}

	// A valid retry claims S01, not S02.
	sale, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "Retry",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: tea.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("retry SubmitSale: %v", err)
	}
	if sale.InvoiceNumber != "S01" {
		t.Fatalf("expected invoice S01 after rolled-back claim, got %s", sale.InvoiceNumber)
	}
}

func TestConcurrentSaleCommits(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newTenantContext(t, "Concurrent")

	const workers = 8
	const stock = 5
	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", stock)

	var wg sync.WaitGroup
	invoices := make(chan string, workers)
	failures := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sale, err := models.SubmitSale(ctx, "", &models.NewSale{
				CustomerName:  fmt.Sprintf("Till %d", n),
				PaymentMethod: models.PaymentMethodCash,
				Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
			})
			if err != nil {
				failures <- err
				return
			}
			invoices <- sale.InvoiceNumber
		}(i)
	}
	wg.Wait()
	close(invoices)
	close(failures)

	seen := map[string]bool{}
	for inv := range invoices {
		if seen[inv] {
			t.Fatalf("duplicate invoice number %s", inv)
		}
		seen[inv] = true
	}
	if len(seen) != stock {
		t.Fatalf("expected exactly %d committed sales, got %d", stock, len(seen))
	}
	for err := range failures {
		if !errors.Is(err, utils.ErrorInsufficientStock) {
			t.Fatalf("losing commits must fail with ErrorInsufficientStock, got %v", err)
		}
	}

	after, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.StockQty != 0 {
		t.Fatalf("stock must land exactly at 0, got %d", after.StockQty)
	}
}

func TestSubmitSaleIdempotentReplay(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newTenantContext(t, "Idempotent")

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)
	input := &models.NewSale{
		CustomerName:  "Replay",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 2}},
	}

	first, err := models.SubmitSale(ctx, "key-1", input)
	if err != nil {
		t.Fatalf("first SubmitSale: %v", err)
	}
	second, err := models.SubmitSale(ctx, "key-1", input)
	if err != nil {
		t.Fatalf("replay SubmitSale: %v", err)
	}
	if second.ID != first.ID || second.InvoiceNumber != first.InvoiceNumber {
		t.Fatalf("replay must return the original sale, got %d/%s vs %d/%s",
			second.ID, second.InvoiceNumber, first.ID, first.InvoiceNumber)
	}

	after, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.StockQty != 8 {
		t.Fatalf("stock must be decremented once, got %d", after.StockQty)
	}

	// A failed submission releases the key for retry.
	over := &models.NewSale{
		CustomerName:  "Retry",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 100}},
	}
	if _, err := models.SubmitSale(ctx, "key-2", over); !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("expected ErrorInsufficientStock, got %v", err)
	}
	retried, err := models.SubmitSale(ctx, "key-2", &models.NewSale{
		CustomerName:  "Retry",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if retried.ID == first.ID {
		t.Fatalf("retry must commit a new sale")
	}
}

func TestTenantGuardScopesQueries(t *testing.T) {
	setupIntegration(t)
	ctxA, _ := newTenantContext(t, "TenantA")
	ctxB, _ := newTenantContext(t, "TenantB")

	seedProduct(t, ctxA, "Coffee", "COF-001", "10.00", 5)
	seedProduct(t, ctxB, "Tea", "TEA-001", "5.00", 5)

	db := config.GetDB()

	// No explicit admin_id filter: the guard plugin must add one.
	var scoped []*models.Product
	if err := db.WithContext(ctxA).Find(&scoped).Error; err != nil {
		t.Fatalf("scoped find: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Sku != "COF-001" {
		t.Fatalf("expected only tenant A's product, got %+v", scoped)
	}

	// Explicit bypass sees both tenants.
	skipCtx := utils.SetSkipTenantScopeInContext(ctxA, true)
	var all []*models.Product
	if err := db.WithContext(skipCtx).Find(&all).Error; err != nil {
		t.Fatalf("bypass find: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both tenants' products with scope bypass, got %d", len(all))
	}
}

func TestFreshTenantInvoiceSequenceStartsAtOne(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newTenantContext(t, "FreshCounter")

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)

	// No counter row exists yet; the seeding insert must yield 1, not
	// whatever row id the storage engine hands out.
	first, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "First",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("first SubmitSale: %v", err)
	}
	if first.InvoiceNumber != "S01" || first.SequenceNo != 1 {
		t.Fatalf("expected S01/1, got %s/%d", first.InvoiceNumber, first.SequenceNo)
	}

	second, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "Second",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("second SubmitSale: %v", err)
	}
	if second.InvoiceNumber != "S02" || second.SequenceNo != 2 {
		t.Fatalf("expected S02/2, got %s/%d", second.InvoiceNumber, second.SequenceNo)
	}

	counter, err := models.GetCounter(ctx, models.CounterTypeSale)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if counter.Count != 2 {
		t.Fatalf("expected counter at 2, got %d", counter.Count)
	}
}

func TestSubmitSaleReclaimsStaleSubmission(t *testing.T) {
	setupIntegration(t)
	ctx, admin := newTenantContext(t, "StaleClaim")
	db := config.GetDB()

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)
	input := &models.NewSale{
		CustomerName:  "Recovered",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 1}},
	}

	// A claim left Submitting by a crashed attempt.
	if err := db.Exec(
		"INSERT INTO sale_submissions (admin_id, submission_key, status, sale_id, invoice_number, created_at, updated_at) VALUES (?, ?, 'Submitting', 0, '', NOW(), NOW())",
		admin.ID, "crashed-key",
	).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	// While the claim is fresh it still blocks.
	if _, err := models.SubmitSale(ctx, "crashed-key", input); !errors.Is(err, models.ErrSubmissionInProgress) {
		t.Fatalf("expected ErrSubmissionInProgress, got %v", err)
	}

	// Once the claim has gone stale a retry takes it over.
	if err := db.Exec(
		"UPDATE sale_submissions SET updated_at = DATE_SUB(NOW(), INTERVAL 10 MINUTE) WHERE admin_id = ? AND submission_key = ?",
		admin.ID, "crashed-key",
	).Error; err != nil {
		t.Fatalf("backdate submission: %v", err)
	}
	sale, err := models.SubmitSale(ctx, "crashed-key", input)
	if err != nil {
		t.Fatalf("SubmitSale after staleness: %v", err)
	}
	if sale.InvoiceNumber == "" {
		t.Fatalf("expected a committed sale with an invoice number")
	}

	// The recovered key now replays like any succeeded submission.
	again, err := models.SubmitSale(ctx, "crashed-key", input)
	if err != nil {
		t.Fatalf("replay after recovery: %v", err)
	}
	if again.ID != sale.ID {
		t.Fatalf("replay must return the recovered sale, got %d vs %d", again.ID, sale.ID)
	}

	after, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.StockQty != 9 {
		t.Fatalf("stock must be decremented once, got %d", after.StockQty)
	}
}

func TestSaleCommitFallbackInvoiceNumber(t *testing.T) {
	setupIntegration(t)
	t.Setenv("ALLOW_FALLBACK_INVOICE_NUMBERS", "true")
	ctx, _ := newTenantContext(t, "Fallback")
	db := config.GetDB()

	coffee := seedProduct(t, ctx, "Coffee", "COF-001", "10.00", 10)

	// Break the counter claim without touching the sale tables.
	if err := db.Exec("RENAME TABLE counters TO counters_hidden").Error; err != nil {
		t.Fatalf("hide counters: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("RENAME TABLE counters_hidden TO counters")
	})

	sale, err := models.SubmitSale(ctx, "", &models.NewSale{
		CustomerName:  "Degraded",
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.NewSaleItem{{ProductId: coffee.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("SubmitSale with counter unavailable: %v", err)
	}
	if !regexp.MustCompile(`^ST\d{4}$`).MatchString(sale.InvoiceNumber) {
		t.Fatalf("expected a fallback invoice id, got %q", sale.InvoiceNumber)
	}
	if sale.SequenceNo != 0 {
		t.Fatalf("fallback sale must carry sequence 0, got %d", sale.SequenceNo)
	}

	after, err := models.GetProduct(ctx, coffee.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if after.StockQty != 8 {
		t.Fatalf("expected stock 8, got %d", after.StockQty)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pos_backoffice_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
