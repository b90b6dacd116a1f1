package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/infrastructure/repo"
	"dispatch-backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	created, assigned atomic.Int64
	mu                sync.Mutex
	rejected          map[string]int
	changes           []string
}

func (o *countingObserver) OrderCreated()  { o.created.Add(1) }
func (o *countingObserver) OrderAssigned() { o.assigned.Add(1) }
func (o *countingObserver) AssignmentRejected(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rejected == nil {
		o.rejected = map[string]int{}
	}
	o.rejected[reason]++
}
func (o *countingObserver) StatusChanged(from, to domain.OrderStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, string(from)+">"+string(to))
}

type failingPublisher struct{ calls atomic.Int64 }

func (p *failingPublisher) Publish(context.Context, domain.Notification) error {
	p.calls.Add(1)
	return errors.New("broker down")
}

type fixture struct {
	st      *repo.MemoryRepo
	orders  *OrderService
	drivers *DriverService
	obs     *countingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := repo.NewMemoryRepo()
	obs := &countingObserver{}
	return &fixture{
		st:      st,
		orders:  &OrderService{Repo: st, Observer: obs, Log: logging.Discard()},
		drivers: &DriverService{Repo: st, Log: logging.Discard()},
		obs:     obs,
	}
}

func (f *fixture) driver(t *testing.T, phone string, available bool) *domain.Driver {
	t.Helper()
	d, err := f.drivers.Create(context.Background(), CreateDriverInput{
		Name:        "Driver " + phone,
		Phone:       phone,
		IsAvailable: available,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) order(t *testing.T) *domain.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), sampleOrder())
	require.NoError(t, err)
	return o
}

func sampleOrder() CreateOrderInput {
	return CreateOrderInput{
		CustomerName:    "Sara",
		CustomerPhone:   "0551234567",
		DeliveryAddress: "King Fahd Rd, Riyadh",
		Items: []domain.OrderItem{
			{Name: "Shawarma", Quantity: 2, Price: 750},
			{Name: "Juice", Quantity: 1, Price: 500},
		},
		DeliveryFee: 500,
	}
}

func (f *fixture) events(t *testing.T, orderID string) []domain.TrackingEvent {
	t.Helper()
	evs, err := f.st.ListTracking(context.Background(), orderID)
	require.NoError(t, err)
	return evs
}

func TestCreateOrderComputesTotals(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)

	assert.Equal(t, domain.Money(2000), o.Subtotal)
	assert.Equal(t, domain.Money(500), o.DeliveryFee)
	assert.Equal(t, "25.00", o.Total.String())
	assert.Equal(t, o.DeliveryFee, o.DriverEarnings)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, domain.PaymentCash, o.PaymentMethod)
	assert.Nil(t, o.DriverID)
	assert.Regexp(t, regexp.MustCompile(`^ORD_\d{8}_[0-9A-F]{6}$`), o.OrderNumber)

	got, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, got.Items)

	evs := f.events(t, o.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.OrderPending, evs[0].Status)
	assert.Equal(t, domain.ActorSystem, evs[0].CreatedByType)

	notes, err := f.st.ListNotifications(context.Background(), domain.NotificationFilter{RecipientType: domain.RecipientAdmin})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyOrderCreated, notes[0].Type)
	assert.Equal(t, int64(1), f.obs.created.Load())
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := sampleOrder()
	total := domain.Money(2400)
	in.TotalAmount = &total
	_, err := f.orders.Create(ctx, in)
	var br ErrBadRequest
	assert.ErrorAs(t, err, &br)

	in = sampleOrder()
	sub := domain.Money(1000)
	in.Subtotal = &sub
	_, err = f.orders.Create(ctx, in)
	assert.ErrorAs(t, err, &br)

	in = sampleOrder()
	in.Items = nil
	_, err = f.orders.Create(ctx, in)
	assert.ErrorAs(t, err, &br)

	in = sampleOrder()
	in.Items[0].Quantity = 0
	_, err = f.orders.Create(ctx, in)
	assert.ErrorAs(t, err, &br)

	in = sampleOrder()
	in.PaymentMethod = "crypto"
	_, err = f.orders.Create(ctx, in)
	assert.ErrorAs(t, err, &br)

	in = sampleOrder()
	total = 2500
	in.TotalAmount = &total
	o, err := f.orders.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(2500), o.Total)
}

func TestCreateOrderRejectsOverflowingAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := sampleOrder()
	in.Items = []domain.OrderItem{{Name: "A", Quantity: 2, Price: 5_000_000_000_000_000}}
	_, err := f.orders.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	in = sampleOrder()
	in.Items = []domain.OrderItem{{Name: "A", Quantity: 1, Price: domain.MaxAmount}}
	in.DeliveryFee = 1
	_, err = f.orders.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	in = sampleOrder()
	huge := domain.Money(math.MaxInt64)
	in.DriverEarnings = &huge
	_, err = f.orders.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	list, err := f.orders.List(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	const n = 8
	drivers := make([]*domain.Driver, n)
	for i := range drivers {
		drivers[i] = f.driver(t, fmt.Sprintf("05000000%02d", i), true)
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		wins    atomic.Int64
		winner  atomic.Value
		lossErr = make(chan error, n)
	)
	for _, d := range drivers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := f.orders.Accept(context.Background(), o.ID, id, domain.Actor{ID: id, Type: domain.ActorDriver})
			if err == nil {
				wins.Add(1)
				winner.Store(id)
				return
			}
			lossErr <- err
		}(d.ID)
	}
	close(start)
	wg.Wait()
	close(lossErr)

	require.Equal(t, int64(1), wins.Load())
	for err := range lossErr {
		assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
	}
	got, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, winner.Load(), *got.DriverID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Len(t, f.events(t, o.ID), 2)
	assert.Equal(t, int64(1), f.obs.assigned.Load())
}

func TestAcceptSameDriverTwice(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()

	first, err := f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)
	second, err := f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, f.events(t, o.ID), 2)

	evs := f.events(t, o.ID)
	assert.Equal(t, d.ID, evs[1].CreatedBy)
	assert.Equal(t, domain.ActorDriver, evs[1].CreatedByType)

	notes, err := f.st.ListNotifications(ctx, domain.NotificationFilter{RecipientType: domain.RecipientDriver, RecipientID: d.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyDriverAssigned, notes[0].Type)
}

func TestAcceptRejectsFinishedOrders(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()
	_, err := f.orders.Cancel(ctx, o.ID, "customer left", domain.SystemActor)
	require.NoError(t, err)

	_, err = f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DriverID)
}

func TestReadyOrderWithoutDriverCanStillBeDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()
	for _, st := range []domain.OrderStatus{domain.OrderConfirmed, domain.OrderPreparing, domain.OrderReady} {
		_, err := f.orders.UpdateStatus(ctx, o.ID, st, domain.SystemActor)
		require.NoError(t, err)
	}
	_, err := f.orders.UpdateStatus(ctx, o.ID, domain.OrderOnWay, domain.SystemActor)
	assert.ErrorIs(t, err, ErrDriverRequired)

	open, err := f.orders.Available(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, o.ID, open[0].ID)

	got, err := f.orders.Accept(ctx, o.ID, d.ID, domain.Actor{ID: "ops", Type: domain.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReady, got.Status)
	assert.True(t, got.AssignedTo(d.ID))

	evs := f.events(t, o.ID)
	assert.Equal(t, domain.OrderReady, evs[len(evs)-1].Status)

	for _, st := range []domain.OrderStatus{domain.OrderOnWay, domain.OrderDelivered} {
		_, err := f.orders.UpdateStatus(ctx, o.ID, st, domain.Actor{ID: d.ID, Type: domain.ActorDriver})
		require.NoError(t, err)
	}
}

// staleDriverRepo reports every driver as available, the way a read taken just
// before the driver went offline would.
type staleDriverRepo struct {
	*repo.MemoryRepo
}

func (r staleDriverRepo) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	d, err := r.MemoryRepo.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	d.IsAvailable = true
	return d, nil
}

func TestAcceptRechecksDriverOnWrite(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", false)
	ctx := context.Background()

	orders := &OrderService{Repo: staleDriverRepo{f.st}, Observer: f.obs, Log: logging.Discard()}
	_, err := orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	assert.ErrorIs(t, err, ErrDriverUnavailable)
	assert.Equal(t, 1, f.obs.rejected["driver_unavailable"])

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DriverID)
	assert.Len(t, f.events(t, o.ID), 1)
}

func TestAcceptByAnotherDriverIsForbidden(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	_, err := f.orders.Accept(context.Background(), o.ID, d.ID, domain.Actor{ID: "someone-else", Type: domain.ActorDriver})
	var fb ErrForbidden
	assert.ErrorAs(t, err, &fb)
}

func TestIllegalTransitionLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, o.ID, domain.OrderDelivered, domain.SystemActor)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.OrderPending, ite.From)
	assert.Equal(t, domain.OrderDelivered, ite.To)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, o.Version, got.Version)
	assert.Len(t, f.events(t, o.ID), 1)
}

func TestSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	ctx := context.Background()

	got, err := f.orders.UpdateStatus(ctx, o.ID, domain.OrderPending, domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, o.Version, got.Version)
	assert.Len(t, f.events(t, o.ID), 1)
	assert.Empty(t, f.obs.changes)
}

func TestUnknownStatusRejected(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	_, err := f.orders.UpdateStatus(context.Background(), o.ID, "shipped", domain.SystemActor)
	var br ErrBadRequest
	assert.ErrorAs(t, err, &br)
}

func TestOnWayRequiresDriver(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	ctx := context.Background()
	for _, st := range []domain.OrderStatus{domain.OrderConfirmed, domain.OrderPreparing, domain.OrderReady} {
		_, err := f.orders.UpdateStatus(ctx, o.ID, st, domain.SystemActor)
		require.NoError(t, err)
	}
	_, err := f.orders.UpdateStatus(ctx, o.ID, domain.OrderOnWay, domain.SystemActor)
	assert.ErrorIs(t, err, ErrDriverRequired)
}

func TestLifecycleCreditsDriverOnDelivery(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()
	driver := domain.Actor{ID: d.ID, Type: domain.ActorDriver}

	_, err := f.orders.Accept(ctx, o.ID, d.ID, driver)
	require.NoError(t, err)
	for _, st := range []domain.OrderStatus{domain.OrderPreparing, domain.OrderReady, domain.OrderOnWay, domain.OrderDelivered} {
		_, err := f.orders.UpdateStatus(ctx, o.ID, st, driver)
		require.NoError(t, err, st)
	}

	got, evs, err := f.orders.Track(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDelivered, got.Status)
	want := []domain.OrderStatus{
		domain.OrderPending, domain.OrderConfirmed, domain.OrderPreparing,
		domain.OrderReady, domain.OrderOnWay, domain.OrderDelivered,
	}
	require.Len(t, evs, len(want))
	for i, ev := range evs {
		assert.Equal(t, want[i], ev.Status)
		if i > 0 {
			assert.False(t, ev.CreatedAt.Before(evs[i-1].CreatedAt))
		}
	}

	dd, err := f.drivers.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, o.DriverEarnings, dd.Earnings)

	_, err = f.orders.Cancel(ctx, o.ID, "too late", domain.SystemActor)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDriverCannotMoveSomeoneElsesOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d1 := f.driver(t, "0500000001", true)
	d2 := f.driver(t, "0500000002", true)
	ctx := context.Background()
	_, err := f.orders.Accept(ctx, o.ID, d1.ID, domain.SystemActor)
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, o.ID, domain.OrderPreparing, domain.Actor{ID: d2.ID, Type: domain.ActorDriver})
	var fb ErrForbidden
	assert.ErrorAs(t, err, &fb)
}

func TestCancelNotifiesAssignedDriver(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()
	_, err := f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)

	got, err := f.orders.Cancel(ctx, o.ID, "customer changed mind", domain.Actor{ID: "admin-1", Type: domain.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)

	evs := f.events(t, o.ID)
	last := evs[len(evs)-1]
	assert.Contains(t, last.Message, "customer changed mind")
	assert.Equal(t, domain.ActorAdmin, last.CreatedByType)

	notes, err := f.st.ListNotifications(ctx, domain.NotificationFilter{RecipientType: domain.RecipientDriver, RecipientID: d.ID})
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotifyOrderStatus, notes[0].Type)
}

func TestUnavailableDriverSeesNoOrders(t *testing.T) {
	f := newFixture(t)
	f.order(t)
	d := f.driver(t, "0500000001", true)
	ctx := context.Background()

	open, err := f.orders.Available(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = f.drivers.SetAvailability(ctx, d.ID, false)
	require.NoError(t, err)

	_, err = f.orders.Available(ctx, d.ID)
	assert.ErrorIs(t, err, ErrDriverUnavailable)

	avail := true
	ds, err := f.drivers.List(ctx, domain.DriverFilter{Available: &avail})
	require.NoError(t, err)
	for _, x := range ds {
		assert.NotEqual(t, d.ID, x.ID)
	}

	o := f.order(t)
	_, err = f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	assert.ErrorIs(t, err, ErrDriverUnavailable)
	assert.Equal(t, 1, f.obs.rejected["driver_unavailable"])
}

func TestAvailableExcludesAssignedAndLateOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.driver(t, "0500000001", true)
	taken := f.order(t)
	late := f.order(t)
	open := f.order(t)

	_, err := f.orders.Accept(ctx, taken.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, late.ID, "", domain.SystemActor)
	require.NoError(t, err)

	list, err := f.orders.Available(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)
}

func TestPublisherFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t)
	pub := &failingPublisher{}
	f.orders.Publisher = pub
	ctx := context.Background()
	d := f.driver(t, "0500000001", true)

	o := f.order(t)
	_, err := f.orders.Accept(ctx, o.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, o.ID, domain.OrderPreparing, domain.SystemActor)
	require.NoError(t, err)

	assert.Positive(t, pub.calls.Load())
	notes, err := f.st.ListNotifications(ctx, domain.NotificationFilter{RecipientType: domain.RecipientCustomer, RecipientID: o.CustomerPhone})
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

// conflictingRepo fails the first n versioned writes as if another writer got there first.
type conflictingRepo struct {
	*repo.MemoryRepo
	n     int
	calls int
}

func (r *conflictingRepo) ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Order, error) {
	r.calls++
	if r.calls <= r.n {
		return nil, domain.ErrVersionConflict
	}
	return r.MemoryRepo.ApplyTransition(ctx, t)
}

func TestTransitionRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	cr := &conflictingRepo{MemoryRepo: f.st, n: 2}
	f.orders.Repo = cr

	got, err := f.orders.UpdateStatus(context.Background(), o.ID, domain.OrderConfirmed, domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, 3, cr.calls)

	cr.calls, cr.n = 0, 10
	_, err = f.orders.UpdateStatus(context.Background(), o.ID, domain.OrderPreparing, domain.SystemActor)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, defaultMaxAttempts, cr.calls)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.driver(t, "0500000001", true)
	a := f.order(t)
	f.order(t)
	_, err := f.orders.Accept(ctx, a.ID, d.ID, domain.SystemActor)
	require.NoError(t, err)

	mine, err := f.orders.List(ctx, domain.OrderFilter{DriverID: d.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	pending, err := f.orders.List(ctx, domain.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.orders.List(ctx, domain.OrderFilter{Statuses: []domain.OrderStatus{"bogus"}})
	var br ErrBadRequest
	assert.ErrorAs(t, err, &br)
}

func TestUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Get(context.Background(), "missing")
	assert.Equal(t, ErrNotFound("order"), err)
	_, _, err = f.orders.Track(context.Background(), "missing")
	assert.Equal(t, ErrNotFound("order"), err)
}
