package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/database/testdb"
	"sales-crm/internal/services/events"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func stock(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Quantity
}

func countOrders(t *testing.T, db *gorm.DB) (orders, items int64) {
	t.Helper()
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&items).Error)
	return orders, items
}

func TestPlaceOrder(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.SeedHierarchy(t, db)
	pub := &recordingPublisher{}
	svc := NewOrderHandler(db, pub)
	product := testdb.Product(t, db, "P", "10.00", 5)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientID:      h.C1.ID,
		SalespersonID: h.S1.ID,
		Lines:         []LineItem{{ProductID: product.ID, Quantity: 3, Discount: dec("10")}},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].Price.Equal(dec("9.00")))
	assert.Equal(t, int64(3), order.Items[0].Quantity)
	assert.True(t, order.Commission.Equal(dec("0.81")), order.Commission.String())
	assert.True(t, order.Total().Equal(dec("27")))
	assert.Equal(t, int64(2), stock(t, db, product.ID))

	var stored models.Order
	require.NoError(t, db.Preload("Items").First(&stored, order.ID).Error)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(3), stored.Items[0].Quantity)
	assert.True(t, stored.Commission.Equal(dec("0.81")))

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventOrderCreated, pub.events[0].EventType)
	assert.Equal(t, order.ID, pub.events[0].OrderID)
	assert.Equal(t, "27.00", pub.events[0].TotalAmount)
}

func TestPlaceOrderUsesPromotionPrice(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.SeedHierarchy(t, db)
	svc := NewOrderHandler(db, nil)
	product := testdb.Product(t, db, "P", "10.00", 5)
	require.NoError(t, db.Create(&models.Promotion{ProductID: product.ID, Discount: dec("8.00")}).Error)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientID:      h.C1.ID,
		SalespersonID: h.S1.ID,
		Lines:         []LineItem{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, order.Items[0].Price.Equal(dec("8.00")))
}

func TestPlaceOrderRejections(t *testing.T) {
	tests := []struct {
		name  string
		lines func(p, other models.Product) []LineItem
		owner func(h testdb.Hierarchy) (client, salesperson int64)
		want  error
	}{
		{
			name:  "insufficient inventory",
			lines: func(p, _ models.Product) []LineItem { return []LineItem{{ProductID: p.ID, Quantity: 6}} },
			want:  ErrInsufficientInventory,
		},
		{
			name: "discount above cap",
			lines: func(p, _ models.Product) []LineItem {
				return []LineItem{{ProductID: p.ID, Quantity: 1, Discount: dec("25")}}
			},
			want: ErrDiscountExceeded,
		},
		{
			name: "all quantities zero",
			lines: func(p, other models.Product) []LineItem {
				return []LineItem{{ProductID: p.ID}, {ProductID: other.ID}}
			},
			want: ErrEmptyOrder,
		},
		{
			name:  "no lines",
			lines: func(models.Product, models.Product) []LineItem { return nil },
			want:  ErrEmptyOrder,
		},
		{
			name:  "unknown product",
			lines: func(models.Product, models.Product) []LineItem { return []LineItem{{ProductID: 9999, Quantity: 1}} },
			want:  ErrInvalidProduct,
		},
		{
			name: "later line fails after earlier decrement",
			lines: func(p, other models.Product) []LineItem {
				return []LineItem{{ProductID: p.ID, Quantity: 2}, {ProductID: other.ID, Quantity: 50}}
			},
			want: ErrInsufficientInventory,
		},
		{
			name:  "negative quantity",
			lines: func(p, _ models.Product) []LineItem { return []LineItem{{ProductID: p.ID, Quantity: -1}} },
			want:  ErrInvalidLine,
		},
		{
			name: "discount over 100",
			lines: func(p, _ models.Product) []LineItem {
				return []LineItem{{ProductID: p.ID, Quantity: 1, Discount: dec("101")}}
			},
			want: ErrInvalidLine,
		},
		{
			name: "duplicate product",
			lines: func(p, _ models.Product) []LineItem {
				return []LineItem{{ProductID: p.ID, Quantity: 1}, {ProductID: p.ID, Quantity: 1}}
			},
			want: ErrInvalidLine,
		},
		{
			name:  "client owned by another salesperson",
			lines: func(p, _ models.Product) []LineItem { return []LineItem{{ProductID: p.ID, Quantity: 1}} },
			owner: func(h testdb.Hierarchy) (int64, int64) { return h.C1.ID, h.S2.ID },
			want:  ErrUnauthorized,
		},
		{
			name:  "submitter is not a salesperson",
			lines: func(p, _ models.Product) []LineItem { return []LineItem{{ProductID: p.ID, Quantity: 1}} },
			owner: func(h testdb.Hierarchy) (int64, int64) { return h.C1.ID, h.M1.ID },
			want:  ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testdb.Open(t)
			h := testdb.SeedHierarchy(t, db)
			pub := &recordingPublisher{}
			svc := NewOrderHandler(db, pub)
			p := testdb.Product(t, db, "P", "10.00", 5)
			other := testdb.Product(t, db, "Q", "4.00", 7)

			client, salesperson := h.C1.ID, h.S1.ID
			if tt.owner != nil {
				client, salesperson = tt.owner(h)
			}

			order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				ClientID:      client,
				SalespersonID: salesperson,
				Lines:         tt.lines(p, other),
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, order)

			assert.Equal(t, int64(5), stock(t, db, p.ID))
			assert.Equal(t, int64(7), stock(t, db, other.ID))
			orders, items := countOrders(t, db)
			assert.Zero(t, orders)
			assert.Zero(t, items)
			assert.Empty(t, pub.events)
		})
	}
}

func TestPlaceOrderInactiveProduct(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.SeedHierarchy(t, db)
	svc := NewOrderHandler(db, nil)
	p := testdb.Product(t, db, "P", "10.00", 5)
	require.NoError(t, db.Model(&p).Update("active", false).Error)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientID:      h.C1.ID,
		SalespersonID: h.S1.ID,
		Lines:         []LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidProduct)
	assert.Equal(t, int64(5), stock(t, db, p.ID))
}

func TestPlaceOrderPublishFailureKeepsOrder(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.SeedHierarchy(t, db)
	svc := NewOrderHandler(db, &recordingPublisher{err: errors.New("redis down")})
	p := testdb.Product(t, db, "P", "10.00", 5)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientID:      h.C1.ID,
		SalespersonID: h.S1.ID,
		Lines:         []LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, int64(4), stock(t, db, p.ID))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.SeedHierarchy(t, db)
	svc := NewOrderHandler(db, nil)
	p := testdb.Product(t, db, "P", "10.00", 5)

	const buyers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		soldOut  int
		failures []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				ClientID:      h.C1.ID,
				SalespersonID: h.S1.ID,
				Lines:         []LineItem{{ProductID: p.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, ErrInsufficientInventory):
				soldOut++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 5, placed)
	assert.Equal(t, buyers-5, soldOut)
	assert.Zero(t, stock(t, db, p.ID))

	var sold int64
	require.NoError(t, db.Model(&models.OrderItem{}).Select("COALESCE(SUM(quantity), 0)").Scan(&sold).Error)
	assert.Equal(t, int64(5), sold)
}
