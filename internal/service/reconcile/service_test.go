package reconcile

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	orderrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
)

// memStore is an in-memory OrderStore whose Settle performs the same
// compare-and-set the SQL conditional update does.
type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*entity.Order
}

func newMemStore(orders ...*entity.Order) *memStore {
	s := &memStore{orders: make(map[uuid.UUID]*entity.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) get(id uuid.UUID) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	if o := s.get(id); o != nil {
		return o, nil
	}
	return nil, orderrepo.ErrNotFound
}

func (s *memStore) GetByTransactionID(ctx context.Context, tranID string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *entity.Order
	for _, o := range s.orders {
		if o.TransactionID == tranID {
			if found == nil || o.CreatedAt.After(found.CreatedAt) {
				found = o
			}
		}
	}
	if found == nil {
		return nil, orderrepo.ErrNotFound
	}
	clone := *found
	return &clone, nil
}

func (s *memStore) GetPendingByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.Status != entity.PaymentPending {
		return nil, orderrepo.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *memStore) FindPendingPlaceholder(ctx context.Context, match *orderrepo.PlaceholderMatch) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *entity.Order
	for _, o := range s.orders {
		if o.Status != entity.PaymentPending || !o.HasPlaceholder() {
			continue
		}
		if match != nil {
			if o.ProductID != match.ProductID || !o.Amount.Equal(match.Amount) || o.Currency != match.Currency {
				continue
			}
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = o
		}
	}
	if found == nil {
		return nil, orderrepo.ErrNotFound
	}
	clone := *found
	return &clone, nil
}

func (s *memStore) Settle(ctx context.Context, id uuid.UUID, status entity.PaymentStatus, tranID string, promote bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.Status != entity.PaymentPending {
		return false, nil
	}
	o.Status = status
	if promote {
		o.TransactionID = tranID
	}
	return true, nil
}

// fnStore overrides individual methods for failure injection.
type fnStore struct {
	*memStore
	settleFn  func(ctx context.Context, id uuid.UUID, status entity.PaymentStatus, tranID string, promote bool) (bool, error)
	getByIDFn func(ctx context.Context, id uuid.UUID) (*entity.Order, error)
}

func (s *fnStore) Settle(ctx context.Context, id uuid.UUID, status entity.PaymentStatus, tranID string, promote bool) (bool, error) {
	if s.settleFn != nil {
		return s.settleFn(ctx, id, status, tranID, promote)
	}
	return s.memStore.Settle(ctx, id, status, tranID, promote)
}

func (s *fnStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return s.memStore.GetByID(ctx, id)
}

type capturePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *capturePublisher) Publish(ctx context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, value)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func pendingOrder(tranID string, productID uuid.UUID, amount int64, createdAt time.Time) *entity.Order {
	return &entity.Order{
		ID:            uuid.New(),
		TransactionID: tranID,
		Status:        entity.PaymentPending,
		OrderStatus:   entity.OrderPending,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "BDT",
		UserID:        uuid.New(),
		ProductID:     productID,
		Quantity:      1,
		PaymentMethod: entity.MethodOnline,
		CreatedAt:     createdAt,
	}
}

func notification(tranID, status string, amount int64, currency, productID, orderID string) Notification {
	return Notification{
		TranID:        tranID,
		GatewayStatus: status,
		Amount:        decimal.NewFromInt(amount),
		Currency:      currency,
		ProductID:     productID,
		OrderID:       orderID,
		Raw:           url.Values{"tran_id": {tranID}},
	}
}

func newTestService(store OrderStore) (*Service, *capturePublisher) {
	pub := &capturePublisher{}
	return NewService(store, zap.NewNop(), pub, true), pub
}

func TestMapGatewayStatus(t *testing.T) {
	assert.Equal(t, entity.PaymentSuccess, MapGatewayStatus("VALID"))
	assert.Equal(t, entity.PaymentSuccess, MapGatewayStatus("VALIDATED"))
	assert.Equal(t, entity.PaymentFailed, MapGatewayStatus("FAILED"))
	assert.Equal(t, entity.PaymentFailed, MapGatewayStatus("CANCELLED"))
	assert.Equal(t, entity.PaymentFailed, MapGatewayStatus(""))
}

func TestParseNotification(t *testing.T) {
	form := url.Values{}
	form.Set("tran_id", "SSLCZ-1")
	form.Set("status", "VALIDATED")
	form.Set("amount", "500")
	form.Set("currency", "BDT")
	form.Set("value_a", "P1")
	form.Set("value_b", "O1")

	n := ParseNotification(form)
	assert.Equal(t, "SSLCZ-1", n.TranID)
	assert.Equal(t, "VALIDATED", n.GatewayStatus)
	assert.True(t, n.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "BDT", n.Currency)
	assert.Equal(t, "P1", n.ProductID)
	assert.Equal(t, "O1", n.OrderID)
}

func TestResolvePrefersExactTransactionID(t *testing.T) {
	now := time.Now()
	exact := pendingOrder("ABC123", uuid.New(), 500, now)
	decoy := pendingOrder("TEMP_1", uuid.New(), 500, now.Add(time.Minute))
	store := newMemStore(exact, decoy)
	svc, _ := newTestService(store)

	// Passthrough fields are absent and inconsistent; the exact match wins.
	n := notification("ABC123", "VALID", 999, "USD", "", "")
	o, err := svc.Resolve(context.Background(), ChannelIPN, n)
	require.NoError(t, err)
	assert.Equal(t, exact.ID, o.ID)
}

func TestResolveFallsBackToPassthroughOrderID(t *testing.T) {
	o := pendingOrder("TEMP_1690000000000", uuid.New(), 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	n := notification("GATEWAY-XYZ", "FAILED", 500, "BDT", "", o.ID.String())
	resolved, err := svc.Resolve(context.Background(), ChannelFail, n)
	require.NoError(t, err)
	assert.Equal(t, o.ID, resolved.ID)
}

func TestResolveIPNHeuristicRequiresFullMatch(t *testing.T) {
	productID := uuid.New()
	o := pendingOrder("TEMP_1690000000000", productID, 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	matching := notification("UNKNOWN", "VALID", 500, "BDT", productID.String(), "")
	resolved, err := svc.Resolve(context.Background(), ChannelIPN, matching)
	require.NoError(t, err)
	assert.Equal(t, o.ID, resolved.ID)

	wrongAmount := notification("UNKNOWN", "VALID", 600, "BDT", productID.String(), "")
	_, err = svc.Resolve(context.Background(), ChannelIPN, wrongAmount)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	wrongProduct := notification("UNKNOWN", "VALID", 500, "BDT", uuid.NewString(), "")
	_, err = svc.Resolve(context.Background(), ChannelIPN, wrongProduct)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestResolveRedirectChannelsUseWeakFallback(t *testing.T) {
	o := pendingOrder("TEMP_1690000000000", uuid.New(), 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	// No amount/product agreement at all; the redirect channels still match
	// any pending placeholder order.
	n := notification("UNKNOWN", "VALID", 0, "", "", "")
	resolved, err := svc.Resolve(context.Background(), ChannelSuccess, n)
	require.NoError(t, err)
	assert.Equal(t, o.ID, resolved.ID)
}

func TestSettleIdempotentReplay(t *testing.T) {
	productID := uuid.New()
	o := pendingOrder("SSLCZ-1", productID, 500, time.Now())
	store := newMemStore(o)
	svc, pub := newTestService(store)

	n := notification("SSLCZ-1", "VALIDATED", 500, "BDT", productID.String(), "")

	first, err := svc.Settle(context.Background(), ChannelIPN, n)
	require.NoError(t, err)
	assert.True(t, first.Transitioned)
	assert.Equal(t, entity.PaymentSuccess, first.Status)

	for i := 0; i < 5; i++ {
		replay, err := svc.Settle(context.Background(), ChannelIPN, n)
		require.NoError(t, err)
		assert.False(t, replay.Transitioned)
		assert.True(t, replay.AlreadyTerminal)
		assert.Equal(t, entity.PaymentSuccess, replay.Status)
	}

	assert.Equal(t, entity.PaymentSuccess, store.get(o.ID).Status)
	assert.Equal(t, 1, pub.count(), "exactly one settlement event for N deliveries")
}

func TestSettlePromotesPlaceholder(t *testing.T) {
	o := pendingOrder("TEMP_1690000000000", uuid.New(), 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	n := notification("GATEWAY-XYZ", "VALID", 500, "BDT", "", o.ID.String())
	outcome, err := svc.Settle(context.Background(), ChannelSuccess, n)
	require.NoError(t, err)
	assert.True(t, outcome.Transitioned)
	assert.True(t, outcome.Promoted)

	settled := store.get(o.ID)
	assert.Equal(t, "GATEWAY-XYZ", settled.TransactionID)
	assert.Equal(t, entity.PaymentSuccess, settled.Status)
}

func TestSettleDoesNotPromoteRealID(t *testing.T) {
	o := pendingOrder("SSLCZ-1", uuid.New(), 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	n := notification("SSLCZ-1", "FAILED", 500, "BDT", "", "")
	outcome, err := svc.Settle(context.Background(), ChannelIPN, notificationWithRequired(n))
	require.NoError(t, err)
	assert.True(t, outcome.Transitioned)
	assert.False(t, outcome.Promoted)
	assert.Equal(t, "SSLCZ-1", store.get(o.ID).TransactionID)
	assert.Equal(t, entity.PaymentFailed, store.get(o.ID).Status)
}

// notificationWithRequired fills the fields IPN validation insists on.
func notificationWithRequired(n Notification) Notification {
	if n.ProductID == "" {
		n.ProductID = uuid.NewString()
	}
	if n.Currency == "" {
		n.Currency = "BDT"
	}
	return n
}

func TestSettleFailChannelOverridesGatewayStatus(t *testing.T) {
	o := pendingOrder("SSLCZ-2", uuid.New(), 500, time.Now())
	store := newMemStore(o)
	svc, _ := newTestService(store)

	// Even a VALID status fails on the fail channel.
	n := notification("SSLCZ-2", "VALID", 500, "BDT", "", "")
	outcome, err := svc.Settle(context.Background(), ChannelFail, n)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentFailed, outcome.Status)
}

func TestSettleValidation(t *testing.T) {
	store := newMemStore()
	svc, pub := newTestService(store)

	cases := []struct {
		name string
		ch   Channel
		n    Notification
	}{
		{"missing tran_id", ChannelIPN, notification("", "VALID", 500, "BDT", "P1", "")},
		{"ipn missing status", ChannelIPN, notification("T1", "", 500, "BDT", "P1", "")},
		{"ipn missing currency", ChannelIPN, notification("T1", "VALID", 500, "", "P1", "")},
		{"ipn missing product", ChannelIPN, notification("T1", "VALID", 500, "BDT", "", "")},
		{"success missing status", ChannelSuccess, notification("T1", "", 0, "", "", "")},
		{"fail missing tran_id", ChannelFail, notification("", "", 0, "", "", "")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Settle(context.Background(), tc.ch, tc.n)
			assert.ErrorIs(t, err, ErrInvalidNotification)
		})
	}
	assert.Zero(t, pub.count())
}

func TestSettleResolverMiss(t *testing.T) {
	store := newMemStore()
	svc, pub := newTestService(store)

	n := notification("NOPE", "VALID", 500, "BDT", uuid.NewString(), "")
	_, err := svc.Settle(context.Background(), ChannelIPN, n)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Zero(t, pub.count())
}

func TestSettleNeverTouchesCODOrders(t *testing.T) {
	o := pendingOrder("TEMP_1690000000001", uuid.New(), 500, time.Now())
	o.Status = entity.PaymentConfirmed
	o.PaymentMethod = entity.MethodCOD
	store := newMemStore(o)
	svc, _ := newTestService(store)

	// Exact tran_id match resolves the COD order, but confirmed is not a
	// reconcilable state.
	n := notification("TEMP_1690000000001", "VALID", 500, "BDT", uuid.NewString(), "")
	_, err := svc.Settle(context.Background(), ChannelIPN, n)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, entity.PaymentConfirmed, store.get(o.ID).Status)
}

func TestSettleConcurrentCallbacksSingleTransition(t *testing.T) {
	productID := uuid.New()
	o := pendingOrder("SSLCZ-9", productID, 500, time.Now())
	store := newMemStore(o)
	svc, pub := newTestService(store)

	n := notification("SSLCZ-9", "VALID", 500, "BDT", productID.String(), o.ID.String())

	const callers = 8
	outcomes := make([]*Outcome, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := ChannelIPN
			if i%2 == 0 {
				ch = ChannelSuccess
			}
			outcomes[i], errs[i] = svc.Settle(context.Background(), ch, n)
		}(i)
	}
	wg.Wait()

	transitions := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if outcomes[i].Transitioned {
			transitions++
		} else {
			assert.True(t, outcomes[i].AlreadyTerminal)
		}
	}
	assert.Equal(t, 1, transitions, "exactly one caller performs the transition")
	assert.Equal(t, 1, pub.count())
	assert.True(t, store.get(o.ID).Status.Terminal())
}

func TestSettleLostRaceReadsBackTerminal(t *testing.T) {
	o := pendingOrder("SSLCZ-3", uuid.New(), 500, time.Now())
	settled := *o
	settled.Status = entity.PaymentSuccess
	store := &fnStore{
		memStore: newMemStore(o),
		settleFn: func(context.Context, uuid.UUID, entity.PaymentStatus, string, bool) (bool, error) {
			return false, nil
		},
		getByIDFn: func(context.Context, uuid.UUID) (*entity.Order, error) {
			return &settled, nil
		},
	}
	svc, pub := newTestService(store)

	n := notification("SSLCZ-3", "VALID", 500, "BDT", uuid.NewString(), "")
	outcome, err := svc.Settle(context.Background(), ChannelIPN, n)
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyTerminal)
	assert.Equal(t, entity.PaymentSuccess, outcome.Status)
	assert.Zero(t, pub.count())
}

func TestSettleStoreWriteError(t *testing.T) {
	o := pendingOrder("SSLCZ-4", uuid.New(), 500, time.Now())
	writeErr := errors.New("connection reset")
	store := &fnStore{
		memStore: newMemStore(o),
		settleFn: func(context.Context, uuid.UUID, entity.PaymentStatus, string, bool) (bool, error) {
			return false, writeErr
		},
	}
	svc, _ := newTestService(store)

	n := notification("SSLCZ-4", "VALID", 500, "BDT", uuid.NewString(), "")
	_, err := svc.Settle(context.Background(), ChannelIPN, n)
	assert.ErrorIs(t, err, writeErr)
}
