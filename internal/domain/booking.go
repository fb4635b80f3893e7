package domain

import "time"

type BookingStatus string

// Bookings are created confirmed; cancellation removes the row.
const BookingConfirmed BookingStatus = "confirmed"

type Parcel struct {
	ID           int64  `json:"parcel_id"`
	Name         string `json:"name"`
	NightlyCents int64  `json:"nightly_cents"`
	IsActive     bool   `json:"is_active"`
}

// Service is a catalog item that can be attached to a booking.
type Service struct {
	ID          int64  `json:"service_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
}

type Booking struct {
	ID         int64         `json:"booking_id"`
	UserID     int64         `json:"user_id"`
	ParcelID   int64         `json:"parcel_id"`
	StartDate  time.Time     `json:"start_date"`
	EndDate    time.Time     `json:"end_date"`
	Guests     int           `json:"guests"`
	PriceCents int64         `json:"price_cents"`
	Status     BookingStatus `json:"status"`
	PaymentRef *string       `json:"payment_ref,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Nights is the number of allocated days, end date exclusive.
func (b *Booking) Nights() int {
	return NightsBetween(b.StartDate, b.EndDate)
}

// NewBooking is the row written by the first step of a reservation.
type NewBooking struct {
	UserID     int64
	ParcelID   int64
	StartDate  time.Time
	EndDate    time.Time
	Guests     int
	PriceCents int64
}

// BookingChange is the new date range (and optionally guests) for an
// existing booking, priced again for the new stay.
type BookingChange struct {
	BookingID  int64
	UserID     int64
	StartDate  time.Time
	EndDate    time.Time
	Guests     *int
	PriceCents int64
}

// ServiceSummary aggregates the services attached to one booking.
type ServiceSummary struct {
	BookingID  int64     `json:"booking_id"`
	Count      int       `json:"count"`
	TotalCents int64     `json:"total_cents"`
	Services   []Service `json:"services"`
}

type DateRangeRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type CheckDatesResponse struct {
	ParcelID int64 `json:"parcel_id"`
	Nights   int   `json:"nights"`
}

type ReservationData struct {
	StartDate  string  `json:"start_date" validate:"required"`
	EndDate    string  `json:"end_date" validate:"required"`
	Guests     int     `json:"guests" validate:"required,min=1,max=20"`
	ServiceIDs []int64 `json:"services" validate:"omitempty,max=20,dive,gt=0"`
}

// ReserveRequest.PriceCents is optional. The server prices the stay from
// the parcel's nightly rate and the catalog; a non-zero value must match.
type ReserveRequest struct {
	Reservation ReservationData `json:"reservation"`
	PriceCents  int64           `json:"price_cents" validate:"gte=0"`
	ParcelID    int64           `json:"parcel_id" validate:"required,gt=0"`
}

type ReserveResponse struct {
	BookingID    int64  `json:"booking_id"`
	ParcelID     int64  `json:"parcel_id"`
	Nights       int    `json:"nights"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type ReserveUpdateRequest struct {
	BookingID int64  `json:"booking_id" validate:"required,gt=0"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Guests    *int   `json:"guests" validate:"omitempty,min=1,max=20"`
}

type BookingIDRequest struct {
	BookingID int64 `json:"booking_id" validate:"required,gt=0"`
}

// UniqueIDs drops repeated ids, keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// StayPrice is the nightly rate times the nights plus the services total.
func StayPrice(nightlyCents int64, nights int, servicesCents int64) int64 {
	return nightlyCents*int64(nights) + servicesCents
}
