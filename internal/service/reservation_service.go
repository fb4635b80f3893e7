package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/internal/platform/payments"
	"github.com/diagnosis/parcel-bookings/internal/repo/postgres"
	"github.com/diagnosis/parcel-bookings/pkg/events"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

type ReservationService interface {
	CheckAvailability(ctx context.Context, req domain.DateRangeRequest) (*domain.CheckDatesResponse, error)
	CreateBooking(ctx context.Context, userID int64, req domain.ReserveRequest) (*domain.ReserveResponse, error)
	ListUserBookings(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListBookingServices(ctx context.Context, userID, bookingID int64) ([]domain.Service, error)
	GetBooking(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)
	ServiceSummary(ctx context.Context, userID, bookingID int64) (*domain.ServiceSummary, error)
	DeleteBooking(ctx context.Context, userID, bookingID int64) error
	UpdateBooking(ctx context.Context, userID int64, req domain.ReserveUpdateRequest) (*domain.Booking, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
}

type reservationService struct {
	store    postgres.Store
	payments payments.Provider
	events   events.Publisher
}

func NewReservationService(store postgres.Store, pay payments.Provider, pub events.Publisher) ReservationService {
	if pay == nil {
		pay = payments.Nop{}
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &reservationService{store: store, payments: pay, events: pub}
}

type stay struct {
	start, end time.Time
	days       []time.Time
}

func parseStay(startDate, endDate string) (stay, error) {
	start, err := domain.ParseDay(startDate)
	if err != nil {
		return stay{}, err
	}
	end, err := domain.ParseDay(endDate)
	if err != nil {
		return stay{}, err
	}
	// The cap is checked on the night count so oversized ranges are never expanded.
	n := domain.NightsBetween(start, end)
	if n <= 0 {
		return stay{}, fmt.Errorf("%w: end_date must be after start_date", domain.ErrInvalidInput)
	}
	if n > domain.MaxStayNights {
		return stay{}, fmt.Errorf("%w: stays are limited to %d nights", domain.ErrInvalidInput, domain.MaxStayNights)
	}
	return stay{start: start, end: end, days: domain.ExpandDateRange(start, end)}, nil
}

func (s *reservationService) CheckAvailability(ctx context.Context, req domain.DateRangeRequest) (*domain.CheckDatesResponse, error) {
	st, err := parseStay(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	parcelID, err := s.store.Bookings().CheckDates(ctx, st.days, 0)
	if err != nil {
		return nil, err
	}
	return &domain.CheckDatesResponse{ParcelID: parcelID, Nights: len(st.days)}, nil
}

// CreateBooking writes the booking, one allocation row per night and the
// service links in a single transaction. If another booking already holds
// any of the nights the whole write is rolled back with ErrNoAvailability.
//
// The price is computed inside the transaction from the parcel's nightly
// rate and the catalog. The payment intent is created only after commit;
// if that fails the booking is deleted again and the error returned.
func (s *reservationService) CreateBooking(ctx context.Context, userID int64, req domain.ReserveRequest) (*domain.ReserveResponse, error) {
	st, err := parseStay(req.Reservation.StartDate, req.Reservation.EndDate)
	if err != nil {
		return nil, err
	}
	serviceIDs := domain.UniqueIDs(req.Reservation.ServiceIDs)

	var booking *domain.Booking
	err = s.store.WithinTx(ctx, func(tx postgres.Tx) error {
		price, err := quote(ctx, tx.Bookings(), req.ParcelID, len(st.days), serviceIDs)
		if err != nil {
			return err
		}
		if req.PriceCents != 0 && req.PriceCents != price {
			return fmt.Errorf("%w: price_cents %d does not match the current price %d",
				domain.ErrInvalidInput, req.PriceCents, price)
		}

		b, err := tx.Bookings().ReserveBooking(ctx, domain.NewBooking{
			UserID:     userID,
			ParcelID:   req.ParcelID,
			StartDate:  st.start,
			EndDate:    st.end,
			Guests:     req.Reservation.Guests,
			PriceCents: price,
		})
		if err != nil {
			return fmt.Errorf("reserve booking: %w", err)
		}
		if err := tx.Bookings().ReserveBookingParcel(ctx, b.ID, req.ParcelID, st.days); err != nil {
			return fmt.Errorf("reserve parcel days: %w", err)
		}
		if err := tx.Bookings().ReserveBookingService(ctx, b.ID, serviceIDs); err != nil {
			return fmt.Errorf("reserve services: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	intent, err := s.chargeBooking(ctx, booking)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, events.BookingCreated, events.BookingCreatedEvent{
		BookingID:  booking.ID,
		UserID:     userID,
		ParcelID:   booking.ParcelID,
		StartDate:  booking.StartDate,
		EndDate:    booking.EndDate,
		Nights:     len(st.days),
		PriceCents: booking.PriceCents,
		ServiceIDs: serviceIDs,
	})

	resp := &domain.ReserveResponse{BookingID: booking.ID, ParcelID: booking.ParcelID, Nights: len(st.days)}
	if intent != nil {
		resp.ClientSecret = intent.ClientSecret
		publish(ctx, s.events, events.PaymentIntentCreated, events.PaymentIntentCreatedEvent{
			BookingID: booking.ID,
			IntentID:  intent.ID,
			Amount:    booking.PriceCents,
			Currency:  intent.Currency,
		})
	}
	return resp, nil
}

// quote prices a stay on parcelID from the values currently stored.
func quote(ctx context.Context, bookings postgres.BookingRepo, parcelID int64, nights int, serviceIDs []int64) (int64, error) {
	rate, err := bookings.ParcelRate(ctx, parcelID)
	if err != nil {
		return 0, err
	}
	extras, err := bookings.ServicesPrice(ctx, serviceIDs)
	if err != nil {
		return 0, err
	}
	return domain.StayPrice(rate, nights, extras), nil
}

// chargeBooking opens a payment intent for a committed booking. On failure
// the booking is deleted so its nights are released.
func (s *reservationService) chargeBooking(ctx context.Context, b *domain.Booking) (*payments.IntentResult, error) {
	intent, err := s.payments.CreateIntent(ctx, payments.Intent{
		BookingID:      b.ID,
		UserID:         b.UserID,
		AmountCents:    b.PriceCents,
		IdempotencyKey: "booking-" + strconv.FormatInt(b.ID, 10),
	})
	if err != nil {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := s.store.Bookings().ReserveDelete(cleanup, b.UserID, b.ID); delErr != nil {
			logger.ErrorContext(ctx, "failed to release booking after payment error",
				"booking_id", b.ID, "error", delErr)
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if intent == nil {
		return nil, nil
	}

	// The intent metadata already carries booking_id, so a lost ref can be
	// recovered from the payment provider.
	if err := s.store.Bookings().SetPaymentRef(ctx, b.ID, intent.ID); err != nil {
		logger.WarnContext(ctx, "failed to store payment ref",
			"booking_id", b.ID, "intent_id", intent.ID, "error", err)
	} else {
		b.PaymentRef = &intent.ID
	}
	return intent, nil
}

func (s *reservationService) ListUserBookings(ctx context.Context, userID int64) ([]domain.Booking, error) {
	bs, err := s.store.Bookings().GetReserveUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bs, nil
}

func (s *reservationService) ListBookingServices(ctx context.Context, userID, bookingID int64) ([]domain.Service, error) {
	if _, err := s.store.Bookings().GetReserveByID(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	return s.store.Bookings().GetReserveService(ctx, userID, bookingID)
}

func (s *reservationService) GetBooking(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	return s.store.Bookings().GetReserveByID(ctx, userID, bookingID)
}

// ServiceSummary loads the aggregate and the service list concurrently.
func (s *reservationService) ServiceSummary(ctx context.Context, userID, bookingID int64) (*domain.ServiceSummary, error) {
	var (
		sum  *domain.ServiceSummary
		list []domain.Service
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sum, err = s.store.Bookings().GetServiceByReserve(gctx, userID, bookingID)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = s.store.Bookings().GetReserveService(gctx, userID, bookingID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sum.Services = list
	return sum, nil
}

func (s *reservationService) DeleteBooking(ctx context.Context, userID, bookingID int64) error {
	if err := s.store.Bookings().ReserveDelete(ctx, userID, bookingID); err != nil {
		return err
	}
	publish(ctx, s.events, events.BookingCanceled, events.BookingCanceledEvent{
		BookingID:  bookingID,
		UserID:     userID,
		CanceledAt: time.Now().UTC(),
	})
	return nil
}

// UpdateBooking moves a booking to a new date range. The booking row is
// locked, availability is checked ignoring the booking's own nights, and
// the row plus its allocation rows are rewritten in one transaction. The
// stored price is recomputed for the new stay; no further charge is made.
func (s *reservationService) UpdateBooking(ctx context.Context, userID int64, req domain.ReserveUpdateRequest) (*domain.Booking, error) {
	st, err := parseStay(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	var updated *domain.Booking
	err = s.store.WithinTx(ctx, func(tx postgres.Tx) error {
		if _, err := tx.Bookings().LockReserve(ctx, userID, req.BookingID); err != nil {
			return err
		}
		parcelID, err := tx.Bookings().CheckDates(ctx, st.days, req.BookingID)
		if err != nil {
			return err
		}
		attached, err := tx.Bookings().GetReserveService(ctx, userID, req.BookingID)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(attached))
		for _, svc := range attached {
			ids = append(ids, svc.ID)
		}
		price, err := quote(ctx, tx.Bookings(), parcelID, len(st.days), ids)
		if err != nil {
			return err
		}
		b, err := tx.Bookings().ReserveUpdate(ctx, domain.BookingChange{
			BookingID:  req.BookingID,
			UserID:     userID,
			StartDate:  st.start,
			EndDate:    st.end,
			Guests:     req.Guests,
			PriceCents: price,
		}, parcelID)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := tx.Bookings().ParcelUpdate(ctx, b.ID, parcelID, st.days); err != nil {
			return fmt.Errorf("update parcel days: %w", err)
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, events.BookingUpdated, events.BookingUpdatedEvent{
		BookingID: updated.ID,
		UserID:    userID,
		ParcelID:  updated.ParcelID,
		StartDate: updated.StartDate,
		EndDate:   updated.EndDate,
		UpdatedAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (s *reservationService) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.store.Catalog().ListServices(ctx)
}
