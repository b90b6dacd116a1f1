package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatch-backend/internal/domain"
)

type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	// row lock taken on the driver while an order is assigned to it
	lockShared string
	schema     []string
	isUnique   func(error) bool
}

// SQLRepo implements the store on database/sql. Queries are written with ?
// placeholders and rebound per dialect.
type SQLRepo struct {
	db *sql.DB
	d  dialect
}

func newSQLRepo(db *sql.DB, d dialect) *SQLRepo {
	return &SQLRepo{db: db, d: d}
}

func (r *SQLRepo) Dialect() string { return r.d.name }

// Migrate creates the tables and indexes if they do not exist.
func (r *SQLRepo) Migrate(ctx context.Context) error {
	for _, stmt := range r.d.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.d.name, err)
		}
	}
	return nil
}

func (r *SQLRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepo) Close() error {
	return r.db.Close()
}

func (r *SQLRepo) q(query string) string {
	if !r.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *SQLRepo) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if r.d.isUnique != nil && r.d.isUnique(err) {
		return domain.ErrDuplicate
	}
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return r.mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

const orderColumns = `id,order_number,customer_name,customer_phone,delivery_address,restaurant_id,payment_method,notes,items,subtotal,delivery_fee,total,driver_earnings,status,driver_id,version,created_at,updated_at`

func (r *SQLRepo) CreateOrder(ctx context.Context, o *domain.Order, ev domain.TrackingEvent, notes []domain.Notification) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.q(`INSERT INTO orders (`+orderColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
			o.ID, o.OrderNumber, o.CustomerName, o.CustomerPhone, o.DeliveryAddress, o.RestaurantID,
			string(o.PaymentMethod), o.Notes, string(items), int64(o.Subtotal), int64(o.DeliveryFee),
			int64(o.Total), int64(o.DriverEarnings), string(o.Status), nullable(o.DriverID), o.Version,
			o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return r.mapErr(err)
		}
		ev.OrderID = o.ID
		if err := r.insertTracking(ctx, tx, ev); err != nil {
			return err
		}
		return r.insertNotifications(ctx, tx, notes)
	})
}

func (r *SQLRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOrder(ctx, r.db, id)
}

func (r *SQLRepo) getOrder(ctx context.Context, q queryer, id string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx, r.q(`SELECT `+orderColumns+` FROM orders WHERE id=?`), id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, r.mapErr(err)
	}
	return o, nil
}

func (r *SQLRepo) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var where []string
	var args []any
	if f.DriverID != "" {
		where = append(where, "driver_id=?")
		args = append(args, f.DriverID)
	}
	if f.Unassigned {
		where = append(where, "driver_id IS NULL")
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *SQLRepo) AssignDriver(ctx context.Context, a domain.Assignment) (*domain.Order, error) {
	var out *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{a.DriverID, string(domain.OrderPending), string(domain.OrderConfirmed), a.At, a.OrderID}
		for _, s := range a.From {
			args = append(args, string(s))
		}
		args = append(args, a.DriverID)
		res, err := tx.ExecContext(ctx, r.q(`UPDATE orders
			SET driver_id=?, status=CASE WHEN status=? THEN ? ELSE status END, version=version+1, updated_at=?
			WHERE id=? AND driver_id IS NULL AND status IN (`+placeholders(len(a.From))+`)
			AND EXISTS (SELECT 1 FROM drivers WHERE id=? AND is_active AND is_available`+r.d.lockShared+`)`), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			cur, err := r.getOrder(ctx, tx, a.OrderID)
			if err != nil {
				return err
			}
			if cur.Assigned() {
				return domain.ErrAlreadyAssigned
			}
			if _, err := domain.AssignmentTarget(cur.Status); err != nil || !statusIn(cur.Status, a.From) {
				return &domain.InvalidTransitionError{From: cur.Status, To: domain.OrderConfirmed}
			}
			return domain.ErrDriverUnavailable
		}
		if out, err = r.getOrder(ctx, tx, a.OrderID); err != nil {
			return err
		}
		ev := a.Event
		ev.OrderID = a.OrderID
		ev.Status = out.Status
		if err := r.insertTracking(ctx, tx, ev); err != nil {
			return err
		}
		return r.insertNotifications(ctx, tx, a.Notifications)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRepo) ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Order, error) {
	var out *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.q(`UPDATE orders SET status=?, version=version+1, updated_at=?
			WHERE id=? AND version=?`), string(t.To), t.At, t.OrderID, t.ExpectedVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := r.getOrder(ctx, tx, t.OrderID); err != nil {
				return err
			}
			return domain.ErrVersionConflict
		}
		if t.CreditDriverID != "" {
			res, err := tx.ExecContext(ctx, r.q(`UPDATE drivers SET earnings=earnings+?, updated_at=? WHERE id=?`),
				int64(t.Credit), t.At, t.CreditDriverID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return domain.ErrNotFound
			}
		}
		ev := t.Event
		ev.OrderID = t.OrderID
		if err := r.insertTracking(ctx, tx, ev); err != nil {
			return err
		}
		if err := r.insertNotifications(ctx, tx, t.Notifications); err != nil {
			return err
		}
		out, err = r.getOrder(ctx, tx, t.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRepo) ListTracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT id,order_id,status,message,created_by,created_by_type,created_at
		FROM order_tracking WHERE order_id=? ORDER BY seq ASC`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.TrackingEvent, 0)
	for rows.Next() {
		var ev domain.TrackingEvent
		if err := rows.Scan(&ev.ID, &ev.OrderID, (*string)(&ev.Status), &ev.Message, &ev.CreatedBy, (*string)(&ev.CreatedByType), &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLRepo) insertTracking(ctx context.Context, tx *sql.Tx, ev domain.TrackingEvent) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO order_tracking (id,order_id,status,message,created_by,created_by_type,created_at)
		VALUES (?,?,?,?,?,?,?)`),
		ev.ID, ev.OrderID, string(ev.Status), ev.Message, ev.CreatedBy, string(ev.CreatedByType), ev.CreatedAt)
	return r.mapErr(err)
}

func (r *SQLRepo) insertNotifications(ctx context.Context, q queryer, notes []domain.Notification) error {
	for _, n := range notes {
		_, err := q.ExecContext(ctx, r.q(`INSERT INTO notifications (id,type,title,message,recipient_type,recipient_id,order_id,is_read,created_at)
			VALUES (?,?,?,?,?,?,?,?,?)`),
			n.ID, string(n.Type), n.Title, n.Message, string(n.RecipientType), n.RecipientID, n.OrderID, n.IsRead, n.CreatedAt)
		if err != nil {
			return r.mapErr(err)
		}
	}
	return nil
}

const driverColumns = `id,name,phone,is_available,is_active,current_location,earnings,created_at,updated_at`

func (r *SQLRepo) CreateDriver(ctx context.Context, d *domain.Driver) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO drivers (`+driverColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`),
		d.ID, d.Name, d.Phone, d.IsAvailable, d.IsActive, d.CurrentLocation, int64(d.Earnings), d.CreatedAt, d.UpdatedAt)
	return r.mapErr(err)
}

func (r *SQLRepo) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	return r.getDriver(ctx, r.db, id)
}

func (r *SQLRepo) getDriver(ctx context.Context, q queryer, id string) (*domain.Driver, error) {
	d, err := scanDriver(q.QueryRowContext(ctx, r.q(`SELECT `+driverColumns+` FROM drivers WHERE id=?`), id))
	if err != nil {
		return nil, r.mapErr(err)
	}
	return d, nil
}

func (r *SQLRepo) ListDrivers(ctx context.Context, f domain.DriverFilter) ([]domain.Driver, error) {
	var where []string
	var args []any
	if f.Available != nil {
		where = append(where, "is_available=?")
		args = append(args, *f.Available)
	}
	if f.Active != nil {
		where = append(where, "is_active=?")
		args = append(args, *f.Active)
	}
	if f.Phone != "" {
		where = append(where, "phone=?")
		args = append(args, f.Phone)
	}
	query := `SELECT ` + driverColumns + ` FROM drivers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Driver, 0)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *SQLRepo) UpdateDriver(ctx context.Context, id string, p domain.DriverPatch) (*domain.Driver, error) {
	var out *domain.Driver
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		d, err := r.getDriver(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(d)
		d.UpdatedAt = nowUTC()
		_, err = tx.ExecContext(ctx, r.q(`UPDATE drivers SET name=?, phone=?, is_available=?, is_active=?, current_location=?, updated_at=?
			WHERE id=?`), d.Name, d.Phone, d.IsAvailable, d.IsActive, d.CurrentLocation, d.UpdatedAt, id)
		if err != nil {
			return r.mapErr(err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRepo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return r.insertNotifications(ctx, r.db, []domain.Notification{*n})
}

func (r *SQLRepo) ListNotifications(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	var where []string
	var args []any
	if f.RecipientType != "" {
		where = append(where, "recipient_type=?")
		args = append(args, string(f.RecipientType))
	}
	if f.RecipientID != "" {
		where = append(where, "recipient_id=?")
		args = append(args, f.RecipientID)
	}
	if f.UnreadOnly {
		where = append(where, "is_read=?")
		args = append(args, false)
	}
	query := `SELECT id,type,title,message,recipient_type,recipient_id,order_id,is_read,created_at FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, (*string)(&n.Type), &n.Title, &n.Message, (*string)(&n.RecipientType), &n.RecipientID, &n.OrderID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLRepo) MarkNotificationRead(ctx context.Context, id string, to domain.Recipient) error {
	query := `UPDATE notifications SET is_read=? WHERE id=?`
	args := []any{true, id}
	if to.Type != "" {
		query += ` AND recipient_type=? AND recipient_id=?`
		args = append(args, string(to.Type), to.ID)
	}
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var items string
	var driverID sql.NullString
	var subtotal, fee, total, earnings int64
	err := s.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.DeliveryAddress, &o.RestaurantID,
		(*string)(&o.PaymentMethod), &o.Notes, &items, &subtotal, &fee, &total, &earnings, (*string)(&o.Status),
		&driverID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	o.Subtotal = domain.Money(subtotal)
	o.DeliveryFee = domain.Money(fee)
	o.Total = domain.Money(total)
	o.DriverEarnings = domain.Money(earnings)
	if driverID.Valid {
		id := driverID.String
		o.DriverID = &id
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func scanDriver(s scanner) (*domain.Driver, error) {
	var d domain.Driver
	var earnings int64
	if err := s.Scan(&d.ID, &d.Name, &d.Phone, &d.IsAvailable, &d.IsActive, &d.CurrentLocation, &earnings, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Earnings = domain.Money(earnings)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
