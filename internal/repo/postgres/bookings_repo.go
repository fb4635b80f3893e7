package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/parcel-bookings/internal/domain"
)

type BookingRepo interface {
	CheckDates(ctx context.Context, days []time.Time, excludeBookingID int64) (int64, error)
	ParcelRate(ctx context.Context, parcelID int64) (int64, error)
	ServicesPrice(ctx context.Context, serviceIDs []int64) (int64, error)
	ReserveBooking(ctx context.Context, in domain.NewBooking) (*domain.Booking, error)
	ReserveBookingParcel(ctx context.Context, bookingID, parcelID int64, days []time.Time) error
	ReserveBookingService(ctx context.Context, bookingID int64, serviceIDs []int64) error
	SetPaymentRef(ctx context.Context, bookingID int64, ref string) error
	GetReserveUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	GetReserveService(ctx context.Context, userID, bookingID int64) ([]domain.Service, error)
	GetReserveByID(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)
	LockReserve(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)
	GetServiceByReserve(ctx context.Context, userID, bookingID int64) (*domain.ServiceSummary, error)
	ReserveDelete(ctx context.Context, userID, bookingID int64) error
	ReserveUpdate(ctx context.Context, change domain.BookingChange, parcelID int64) (*domain.Booking, error)
	ParcelUpdate(ctx context.Context, bookingID, parcelID int64, days []time.Time) error
}

type BookingRepoImpl struct{ db DBTX }

func NewBookingRepo(db DBTX) *BookingRepoImpl { return &BookingRepoImpl{db: db} }

const bookingCols = `booking_id, user_id, parcel_id, start_date, end_date,
guests, price_cents, status, payment_ref, created_at, updated_at`

const parcelDayConstraint = "booking_parcel_parcel_day_key"

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.ParcelID, &b.StartDate, &b.EndDate,
		&b.Guests, &b.PriceCents, &b.Status, &b.PaymentRef, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return &b, nil
}

// CheckDates returns the lowest-numbered active parcel that is free on every
// day. Allocation rows belonging to excludeBookingID are ignored, so a booking
// being moved does not conflict with itself; pass 0 to exclude nothing.
func (r *BookingRepoImpl) CheckDates(ctx context.Context, days []time.Time, excludeBookingID int64) (int64, error) {
	const q = `
SELECT p.parcel_id
FROM parcel p
WHERE p.is_active
  AND NOT EXISTS (
    SELECT 1 FROM booking_parcel bp
    WHERE bp.parcel_id = p.parcel_id
      AND bp.day = ANY($1::date[])
      AND bp.booking_id <> $2
  )
ORDER BY p.parcel_id
LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var parcelID int64
	err := r.db.QueryRow(ctx, q, days, excludeBookingID).Scan(&parcelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNoAvailability
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return parcelID, nil
}

// ParcelRate returns the nightly price of an active parcel. The row is
// share-locked so the rate cannot change before the transaction ends.
func (r *BookingRepoImpl) ParcelRate(ctx context.Context, parcelID int64) (int64, error) {
	const q = `SELECT nightly_cents FROM parcel WHERE parcel_id = $1 AND is_active FOR SHARE`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var cents int64
	err := r.db.QueryRow(ctx, q, parcelID).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown parcel %d", domain.ErrInvalidInput, parcelID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return cents, nil
}

// ServicesPrice sums the catalog price of the given services, each counted
// once. Any id missing from the catalog is ErrInvalidInput.
func (r *BookingRepoImpl) ServicesPrice(ctx context.Context, serviceIDs []int64) (int64, error) {
	ids := domain.UniqueIDs(serviceIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `
SELECT count(*), COALESCE(sum(price_cents), 0)
FROM service
WHERE service_id = ANY($1::bigint[])`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		found int
		total int64
	)
	if err := r.db.QueryRow(ctx, q, ids).Scan(&found, &total); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if found != len(ids) {
		return 0, fmt.Errorf("%w: unknown service", domain.ErrInvalidInput)
	}
	return total, nil
}

func (r *BookingRepoImpl) ReserveBooking(ctx context.Context, in domain.NewBooking) (*domain.Booking, error) {
	const q = `
INSERT INTO booking (user_id, parcel_id, start_date, end_date, guests, price_cents, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + bookingCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	b, err := scanBooking(r.db.QueryRow(ctx, q,
		in.UserID, in.ParcelID, in.StartDate, in.EndDate, in.Guests, in.PriceCents, domain.BookingConfirmed,
	))
	if err != nil && isForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: unknown parcel %d", domain.ErrInvalidInput, in.ParcelID)
	}
	return b, err
}

// ReserveBookingParcel writes one allocation row per day. A clash on
// (parcel_id, day) means another booking already holds the parcel.
func (r *BookingRepoImpl) ReserveBookingParcel(ctx context.Context, bookingID, parcelID int64, days []time.Time) error {
	const q = `INSERT INTO booking_parcel (booking_id, parcel_id, day) VALUES ($1, $2, $3)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	for _, day := range days {
		if _, err := r.db.Exec(ctx, q, bookingID, parcelID, day); err != nil {
			if isUniqueViolation(err, parcelDayConstraint) {
				return domain.ErrNoAvailability
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown parcel %d", domain.ErrInvalidInput, parcelID)
			}
			return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}
	return nil
}

func (r *BookingRepoImpl) ReserveBookingService(ctx context.Context, bookingID int64, serviceIDs []int64) error {
	if len(serviceIDs) == 0 {
		return nil
	}
	const q = `
INSERT INTO booking_service (booking_id, service_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, q, bookingID, serviceIDs); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown service", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *BookingRepoImpl) SetPaymentRef(ctx context.Context, bookingID int64, ref string) error {
	const q = `UPDATE booking SET payment_ref = $2, updated_at = now() WHERE booking_id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := r.db.Exec(ctx, q, bookingID, ref)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BookingRepoImpl) GetReserveUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM booking WHERE user_id = $1 ORDER BY start_date, booking_id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	bs := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bs = append(bs, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return bs, nil
}

// GetReserveService lists the services attached to one of the user's bookings.
func (r *BookingRepoImpl) GetReserveService(ctx context.Context, userID, bookingID int64) ([]domain.Service, error) {
	const q = `
SELECT s.service_id, s.name, s.description, s.price_cents
FROM booking_service bs
JOIN booking b ON b.booking_id = bs.booking_id
JOIN service s ON s.service_id = bs.service_id
WHERE bs.booking_id = $1 AND b.user_id = $2
ORDER BY s.service_id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, bookingID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()
	return collectServices(rows)
}

func (r *BookingRepoImpl) GetReserveByID(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM booking WHERE booking_id = $1 AND user_id = $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanBooking(r.db.QueryRow(ctx, q, bookingID, userID))
}

// LockReserve is GetReserveByID with a row lock held until the transaction ends.
func (r *BookingRepoImpl) LockReserve(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM booking WHERE booking_id = $1 AND user_id = $2 FOR UPDATE`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanBooking(r.db.QueryRow(ctx, q, bookingID, userID))
}

// GetServiceByReserve returns the count and total price of a booking's
// services. Services is left empty.
func (r *BookingRepoImpl) GetServiceByReserve(ctx context.Context, userID, bookingID int64) (*domain.ServiceSummary, error) {
	const q = `
SELECT count(s.service_id), COALESCE(sum(s.price_cents), 0)
FROM booking b
LEFT JOIN booking_service bs ON bs.booking_id = b.booking_id
LEFT JOIN service s ON s.service_id = bs.service_id
WHERE b.booking_id = $1 AND b.user_id = $2
GROUP BY b.booking_id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sum := domain.ServiceSummary{BookingID: bookingID, Services: []domain.Service{}}
	err := r.db.QueryRow(ctx, q, bookingID, userID).Scan(&sum.Count, &sum.TotalCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return &sum, nil
}

func (r *BookingRepoImpl) ReserveDelete(ctx context.Context, userID, bookingID int64) error {
	const q = `DELETE FROM booking WHERE booking_id = $1 AND user_id = $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := r.db.Exec(ctx, q, bookingID, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BookingRepoImpl) ReserveUpdate(ctx context.Context, change domain.BookingChange, parcelID int64) (*domain.Booking, error) {
	const q = `
UPDATE booking SET
  parcel_id   = $3,
  start_date  = $4,
  end_date    = $5,
  guests      = COALESCE($6, guests),
  price_cents = $7,
  updated_at  = now()
WHERE booking_id = $1 AND user_id = $2
RETURNING ` + bookingCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanBooking(r.db.QueryRow(ctx, q,
		change.BookingID, change.UserID, parcelID, change.StartDate, change.EndDate, change.Guests, change.PriceCents,
	))
}

// ParcelUpdate replaces every allocation row of the booking with one row per
// day on parcelID.
func (r *BookingRepoImpl) ParcelUpdate(ctx context.Context, bookingID, parcelID int64, days []time.Time) error {
	const q = `DELETE FROM booking_parcel WHERE booking_id = $1`
	delCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := r.db.Exec(delCtx, q, bookingID); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return r.ReserveBookingParcel(ctx, bookingID, parcelID, days)
}

func collectServices(rows pgx.Rows) ([]domain.Service, error) {
	ss := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.PriceCents); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		ss = append(ss, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return ss, nil
}
