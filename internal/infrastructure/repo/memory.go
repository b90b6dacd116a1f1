package repo

import (
	"context"
	"sort"
	"sync"

	"dispatch-backend/internal/domain"
)

// MemoryRepo keeps everything in maps guarded by one lock. Every write that
// checks a precondition does so under the write lock, so conditional updates
// are atomic.
type MemoryRepo struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	orderNumbers  map[string]string
	drivers       map[string]*domain.Driver
	tracking      map[string][]domain.TrackingEvent
	notifications []*domain.Notification
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders:       make(map[string]*domain.Order),
		orderNumbers: make(map[string]string),
		drivers:      make(map[string]*domain.Driver),
		tracking:     make(map[string][]domain.TrackingEvent),
	}
}

func (r *MemoryRepo) Ping(context.Context) error { return nil }

func (r *MemoryRepo) Close() error { return nil }

func (r *MemoryRepo) CreateOrder(_ context.Context, o *domain.Order, ev domain.TrackingEvent, notes []domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return domain.ErrDuplicate
	}
	if _, ok := r.orderNumbers[o.OrderNumber]; ok {
		return domain.ErrDuplicate
	}
	r.orders[o.ID] = copyOrder(o)
	r.orderNumbers[o.OrderNumber] = o.ID
	r.tracking[o.ID] = append(r.tracking[o.ID], ev)
	r.addNotifications(notes)
	return nil
}

func (r *MemoryRepo) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r *MemoryRepo) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	all := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if matchOrder(o, f) {
			all = append(all, *copyOrder(o))
		}
	}
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, f.Offset, f.Limit), nil
}

func (r *MemoryRepo) AssignDriver(_ context.Context, a domain.Assignment) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[a.OrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Assigned() {
		return nil, domain.ErrAlreadyAssigned
	}
	to, err := domain.AssignmentTarget(o.Status)
	if err != nil || !statusIn(o.Status, a.From) {
		return nil, &domain.InvalidTransitionError{From: o.Status, To: domain.OrderConfirmed}
	}
	if d, ok := r.drivers[a.DriverID]; !ok || !d.CanTakeOrders() {
		return nil, domain.ErrDriverUnavailable
	}
	driverID := a.DriverID
	o.DriverID = &driverID
	o.Status = to
	o.Version++
	o.UpdatedAt = a.At
	ev := a.Event
	ev.OrderID = o.ID
	ev.Status = to
	r.tracking[o.ID] = append(r.tracking[o.ID], ev)
	r.addNotifications(a.Notifications)
	return copyOrder(o), nil
}

func (r *MemoryRepo) ApplyTransition(_ context.Context, t domain.Transition) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[t.OrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Version != t.ExpectedVersion {
		return nil, domain.ErrVersionConflict
	}
	if t.CreditDriverID != "" {
		d, ok := r.drivers[t.CreditDriverID]
		if !ok {
			return nil, domain.ErrNotFound
		}
		d.Earnings += t.Credit
		d.UpdatedAt = t.At
	}
	o.Status = t.To
	o.Version++
	o.UpdatedAt = t.At
	ev := t.Event
	ev.OrderID = o.ID
	r.tracking[o.ID] = append(r.tracking[o.ID], ev)
	r.addNotifications(t.Notifications)
	return copyOrder(o), nil
}

func (r *MemoryRepo) ListTracking(_ context.Context, orderID string) ([]domain.TrackingEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	evs := r.tracking[orderID]
	out := make([]domain.TrackingEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (r *MemoryRepo) CreateDriver(_ context.Context, d *domain.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[d.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, other := range r.drivers {
		if other.Phone == d.Phone {
			return domain.ErrDuplicate
		}
	}
	cp := *d
	r.drivers[d.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetDriver(_ context.Context, id string) (*domain.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepo) ListDrivers(_ context.Context, f domain.DriverFilter) ([]domain.Driver, error) {
	r.mu.RLock()
	out := make([]domain.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if f.Available != nil && d.IsAvailable != *f.Available {
			continue
		}
		if f.Active != nil && d.IsActive != *f.Active {
			continue
		}
		if f.Phone != "" && d.Phone != f.Phone {
			continue
		}
		out = append(out, *d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepo) UpdateDriver(_ context.Context, id string, p domain.DriverPatch) (*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Phone != nil && *p.Phone != d.Phone {
		for _, other := range r.drivers {
			if other.ID != id && other.Phone == *p.Phone {
				return nil, domain.ErrDuplicate
			}
		}
	}
	p.Apply(d)
	d.UpdatedAt = nowUTC()
	cp := *d
	return &cp, nil
}

func (r *MemoryRepo) CreateNotification(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addNotifications([]domain.Notification{*n})
	return nil
}

func (r *MemoryRepo) ListNotifications(_ context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Notification, 0)
	for i := len(r.notifications) - 1; i >= 0; i-- {
		n := r.notifications[i]
		if f.RecipientType != "" && n.RecipientType != f.RecipientType {
			continue
		}
		if f.RecipientID != "" && n.RecipientID != f.RecipientID {
			continue
		}
		if f.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) MarkNotificationRead(_ context.Context, id string, to domain.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID != id {
			continue
		}
		if to.Type == "" || (n.RecipientType == to.Type && n.RecipientID == to.ID) {
			n.IsRead = true
			return nil
		}
		break
	}
	return domain.ErrNotFound
}

// addNotifications must be called with the write lock held.
func (r *MemoryRepo) addNotifications(notes []domain.Notification) {
	for i := range notes {
		n := notes[i]
		r.notifications = append(r.notifications, &n)
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	if o.DriverID != nil {
		id := *o.DriverID
		cp.DriverID = &id
	}
	cp.Items = make([]domain.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}

func matchOrder(o *domain.Order, f domain.OrderFilter) bool {
	if f.DriverID != "" && !o.AssignedTo(f.DriverID) {
		return false
	}
	if f.Unassigned && o.Assigned() {
		return false
	}
	if len(f.Statuses) > 0 && !statusIn(o.Status, f.Statuses) {
		return false
	}
	return true
}

func statusIn(s domain.OrderStatus, set []domain.OrderStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func page[T any](all []T, offset, limit int) []T {
	if offset > len(all) {
		offset = len(all)
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
