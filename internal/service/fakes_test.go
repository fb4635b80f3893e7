package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/internal/platform/mailer"
	"github.com/diagnosis/parcel-bookings/internal/repo/postgres"
)

type parcelDay struct {
	parcel int64
	day    time.Time
}

// memStore is an in-memory postgres.Store. Allocation rows are claimed
// immediately under the mutex, like a unique index, and released again
// when the surrounding transaction rolls back.
type memStore struct {
	mu sync.Mutex

	users      map[int64]*domain.User
	nextUser   int64
	registered int

	bookings    map[int64]*domain.Booking
	nextBooking int64
	alloc       map[parcelDay]int64
	links       map[int64][]int64

	parcels []int64
	rates   map[int64]int64
	catalog []domain.Service

	commits, rollbacks int
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*domain.User{},
		bookings: map[int64]*domain.Booking{},
		alloc:    map[parcelDay]int64{},
		links:    map[int64][]int64{},
		parcels:  []int64{1, 2},
		rates:    map[int64]int64{1: 10000, 2: 12000},
		catalog: []domain.Service{
			{ID: 1, Name: "Breakfast", PriceCents: 1500},
			{ID: 2, Name: "Late checkout", PriceCents: 2000},
		},
	}
}

func (s *memStore) Users() postgres.UsersRepo      { return &memUsers{s: s} }
func (s *memStore) Bookings() postgres.BookingRepo { return &memBookings{s: s} }
func (s *memStore) Catalog() postgres.CatalogRepo  { return memCatalog{s: s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(tx postgres.Tx) error) error {
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.rollbacks++
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

type memTx struct {
	s    *memStore
	undo []func()
}

func (t *memTx) Users() postgres.UsersRepo      { return &memUsers{s: t.s, tx: t} }
func (t *memTx) Bookings() postgres.BookingRepo { return &memBookings{s: t.s, tx: t} }

// onRollback must be called with s.mu held.
func (t *memTx) onRollback(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

type memUsers struct {
	s  *memStore
	tx *memTx
}

func (r *memUsers) byEmail(email string, verifiedOnly bool) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email && (!verifiedOnly || u.IsVerified) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.byEmail(email, false)
}

func (r *memUsers) FindByEmailLogin(_ context.Context, email string) (*domain.User, error) {
	return r.byEmail(email, true)
}

func (r *memUsers) Register(_ context.Context, in postgres.NewUser) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == in.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	r.s.nextUser++
	r.s.registered++
	id := r.s.nextUser
	now := time.Now().UTC()
	u := &domain.User{ID: id, Email: in.Email, PasswordHash: in.PasswordHash, Name: in.Name, LastName: in.LastName, CreatedAt: now, UpdatedAt: now}
	r.s.users[id] = u
	r.tx.onRollback(func() { delete(r.s.users, id) })
	cp := *u
	return &cp, nil
}

func (r *memUsers) ConfirmUser(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (r *memUsers) EditUserByID(_ context.Context, id int64, in domain.EditUserRequest) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) DeleteUser(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memBookings struct {
	s  *memStore
	tx *memTx
}

func (r *memBookings) CheckDates(_ context.Context, days []time.Time, exclude int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.parcels {
		free := true
		for _, d := range days {
			if owner, ok := r.s.alloc[parcelDay{p, d}]; ok && owner != exclude {
				free = false
				break
			}
		}
		if free {
			return p, nil
		}
	}
	return 0, domain.ErrNoAvailability
}

func (r *memBookings) ParcelRate(_ context.Context, parcelID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.parcels {
		if p == parcelID {
			return r.s.rates[p], nil
		}
	}
	return 0, domain.ErrInvalidInput
}

func (r *memBookings) ServicesPrice(_ context.Context, ids []int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, id := range domain.UniqueIDs(ids) {
		found := false
		for _, svc := range r.s.catalog {
			if svc.ID == id {
				total += svc.PriceCents
				found = true
			}
		}
		if !found {
			return 0, domain.ErrInvalidInput
		}
	}
	return total, nil
}

func (r *memBookings) ReserveBooking(_ context.Context, in domain.NewBooking) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextBooking++
	id := r.s.nextBooking
	now := time.Now().UTC()
	b := &domain.Booking{
		ID: id, UserID: in.UserID, ParcelID: in.ParcelID, StartDate: in.StartDate, EndDate: in.EndDate,
		Guests: in.Guests, PriceCents: in.PriceCents, Status: domain.BookingConfirmed, CreatedAt: now, UpdatedAt: now,
	}
	r.s.bookings[id] = b
	r.tx.onRollback(func() { delete(r.s.bookings, id) })
	cp := *b
	return &cp, nil
}

func (r *memBookings) ReserveBookingParcel(_ context.Context, bookingID, parcelID int64, days []time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.claim(bookingID, parcelID, days)
}

// claim must be called with s.mu held.
func (r *memBookings) claim(bookingID, parcelID int64, days []time.Time) error {
	for _, d := range days {
		key := parcelDay{parcelID, d}
		if _, taken := r.s.alloc[key]; taken {
			return domain.ErrNoAvailability
		}
		r.s.alloc[key] = bookingID
		r.tx.onRollback(func() { delete(r.s.alloc, key) })
	}
	return nil
}

func (r *memBookings) ReserveBookingService(_ context.Context, bookingID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev := r.s.links[bookingID]
	r.s.links[bookingID] = append(append([]int64{}, prev...), ids...)
	r.tx.onRollback(func() { r.s.links[bookingID] = prev })
	return nil
}

func (r *memBookings) SetPaymentRef(_ context.Context, bookingID int64, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentRef = &ref
	return nil
}

func (r *memBookings) GetReserveUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Booking{}
	for _, b := range r.s.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memBookings) owned(userID, bookingID int64) (*domain.Booking, error) {
	b, ok := r.s.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (r *memBookings) servicesOf(bookingID int64) []domain.Service {
	out := []domain.Service{}
	for _, id := range r.s.links[bookingID] {
		for _, svc := range r.s.catalog {
			if svc.ID == id {
				out = append(out, svc)
			}
		}
	}
	return out
}

func (r *memBookings) GetReserveService(_ context.Context, userID, bookingID int64) ([]domain.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.owned(userID, bookingID); err != nil {
		return []domain.Service{}, nil
	}
	return r.servicesOf(bookingID), nil
}

func (r *memBookings) GetReserveByID(_ context.Context, userID, bookingID int64) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, err := r.owned(userID, bookingID)
	if err != nil {
		return nil, err
	}
	cp := *b
	return &cp, nil
}

func (r *memBookings) LockReserve(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	return r.GetReserveByID(ctx, userID, bookingID)
}

func (r *memBookings) GetServiceByReserve(_ context.Context, userID, bookingID int64) (*domain.ServiceSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.owned(userID, bookingID); err != nil {
		return nil, err
	}
	sum := &domain.ServiceSummary{BookingID: bookingID}
	for _, svc := range r.servicesOf(bookingID) {
		sum.Count++
		sum.TotalCents += svc.PriceCents
	}
	return sum, nil
}

func (r *memBookings) ReserveDelete(_ context.Context, userID, bookingID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.owned(userID, bookingID); err != nil {
		return err
	}
	delete(r.s.bookings, bookingID)
	delete(r.s.links, bookingID)
	for k, owner := range r.s.alloc {
		if owner == bookingID {
			delete(r.s.alloc, k)
		}
	}
	return nil
}

func (r *memBookings) ReserveUpdate(_ context.Context, c domain.BookingChange, parcelID int64) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, err := r.owned(c.UserID, c.BookingID)
	if err != nil {
		return nil, err
	}
	prev := *b
	b.ParcelID, b.StartDate, b.EndDate, b.PriceCents = parcelID, c.StartDate, c.EndDate, c.PriceCents
	if c.Guests != nil {
		b.Guests = *c.Guests
	}
	b.UpdatedAt = time.Now().UTC()
	r.tx.onRollback(func() { *b = prev })
	cp := *b
	return &cp, nil
}

func (r *memBookings) ParcelUpdate(_ context.Context, bookingID, parcelID int64, days []time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, owner := range r.s.alloc {
		if owner == bookingID {
			key := k
			delete(r.s.alloc, key)
			r.tx.onRollback(func() { r.s.alloc[key] = bookingID })
		}
	}
	return r.claim(bookingID, parcelID, days)
}

func (r *memBookings) daysOf(bookingID int64) []time.Time {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []time.Time
	for k, owner := range r.s.alloc {
		if owner == bookingID {
			out = append(out, k.day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type memCatalog struct{ s *memStore }

func (c memCatalog) ListServices(context.Context) ([]domain.Service, error) {
	return append([]domain.Service{}, c.s.catalog...), nil
}

// recordingMailer captures dispatches and can be told to fail.
type recordingMailer struct {
	mu           sync.Mutex
	verification []mailer.VerificationMessage
	resets       []mailer.ResetMessage
	contacts     []mailer.ContactMessage
	err          error
}

func (m *recordingMailer) SendContact(_ context.Context, msg mailer.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.contacts = append(m.contacts, msg)
	return nil
}

func (m *recordingMailer) SendVerification(_ context.Context, msg mailer.VerificationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verification = append(m.verification, msg)
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, msg mailer.ResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resets = append(m.resets, msg)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
