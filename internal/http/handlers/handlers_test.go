package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/internal/http/handlers"
	"github.com/diagnosis/parcel-bookings/internal/http/response"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
)

// ---------- Fakes ----------

type fakeAccounts struct {
	registered []domain.RegisterRequest
	verifyErr  error
	loginErr   error
	deleted    []int64
	resetToken string
	resetPass  string
}

func (f *fakeAccounts) Register(_ context.Context, req domain.RegisterRequest) (*domain.User, error) {
	f.registered = append(f.registered, req)
	return &domain.User{ID: 42, Email: req.Email}, nil
}

func (f *fakeAccounts) VerifyEmail(context.Context, string) error { return f.verifyErr }

func (f *fakeAccounts) Login(context.Context, domain.LoginRequest) (*domain.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &domain.LoginResponse{Token: "tok"}, nil
}

func (f *fakeAccounts) UserByID(_ context.Context, id int64) (*domain.User, error) {
	return &domain.User{ID: id, Email: "me@example.com"}, nil
}

func (f *fakeAccounts) EditUser(_ context.Context, id int64, req domain.EditUserRequest) (*domain.User, error) {
	u := &domain.User{ID: id}
	if req.Name != nil {
		u.Name = *req.Name
	}
	return u, nil
}

func (f *fakeAccounts) DeleteUser(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAccounts) ForgetPassword(_ context.Context, email string) error {
	if email == "ghost@example.com" {
		return domain.ErrEmailNotFound
	}
	return nil
}

func (f *fakeAccounts) ResetPassword(_ context.Context, token, newPassword string) error {
	f.resetToken, f.resetPass = token, newPassword
	return nil
}

func (f *fakeAccounts) SendContact(context.Context, domain.ContactRequest) error { return nil }

type fakeReservations struct {
	createErr error
	createdBy int64
	lastReq   domain.ReserveRequest
	bookings  map[int64]*domain.Booking
}

func (f *fakeReservations) CheckAvailability(_ context.Context, req domain.DateRangeRequest) (*domain.CheckDatesResponse, error) {
	if req.StartDate == req.EndDate {
		return nil, fmt.Errorf("%w: empty range", domain.ErrInvalidInput)
	}
	return &domain.CheckDatesResponse{ParcelID: 1, Nights: 2}, nil
}

func (f *fakeReservations) CreateBooking(_ context.Context, userID int64, req domain.ReserveRequest) (*domain.ReserveResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdBy, f.lastReq = userID, req
	return &domain.ReserveResponse{BookingID: 9, ParcelID: req.ParcelID, Nights: 2}, nil
}

func (f *fakeReservations) ListUserBookings(context.Context, int64) ([]domain.Booking, error) {
	return nil, nil
}

func (f *fakeReservations) ListBookingServices(context.Context, int64, int64) ([]domain.Service, error) {
	return []domain.Service{{ID: 1, Name: "Breakfast", PriceCents: 1500}}, nil
}

func (f *fakeReservations) GetBooking(_ context.Context, userID, bookingID int64) (*domain.Booking, error) {
	b, ok := f.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeReservations) ServiceSummary(_ context.Context, _, bookingID int64) (*domain.ServiceSummary, error) {
	return &domain.ServiceSummary{BookingID: bookingID, Count: 1, TotalCents: 1500}, nil
}

func (f *fakeReservations) DeleteBooking(_ context.Context, userID, bookingID int64) error {
	if _, err := f.GetBooking(context.Background(), userID, bookingID); err != nil {
		return err
	}
	delete(f.bookings, bookingID)
	return nil
}

func (f *fakeReservations) UpdateBooking(_ context.Context, userID int64, req domain.ReserveUpdateRequest) (*domain.Booking, error) {
	return nil, domain.ErrNoAvailability
}

func (f *fakeReservations) ListServices(context.Context) ([]domain.Service, error) {
	return nil, nil
}

// ---------- Helpers ----------

type fixture struct {
	accounts     *fakeAccounts
	reservations *fakeReservations
	tokens       *auth.TokenManager
	router       chi.Router
}

func newFixture() *fixture {
	tokens := auth.NewTokenManager(
		auth.Keys{Session: []byte("session-key-abcdef"), Verification: []byte("verify-key-abcdef"), Reset: []byte("reset-key-abcdef")},
		auth.TTLs{Session: time.Hour, Verification: time.Hour, Reset: time.Hour},
	)
	f := &fixture{
		accounts: &fakeAccounts{},
		reservations: &fakeReservations{bookings: map[int64]*domain.Booking{
			5: {ID: 5, UserID: 7, ParcelID: 1},
		}},
		tokens: tokens,
		router: chi.NewRouter(),
	}
	handlers.NewAuthHandler(f.accounts, tokens, "https://app.example.com").Routes(f.router)
	handlers.NewReservationHandler(f.reservations, tokens).Routes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		tok, err := f.tokens.IssueSession(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---------- Tests ----------

func TestRegister(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"long-enough"}`, 0)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "token")
	require.Len(t, f.accounts.registered, 1)
}

func TestRegister_ValidationRejectsBeforeService(t *testing.T) {
	f := newFixture()
	cases := map[string]string{
		"bad email":     `{"email":"not-an-email","password":"long-enough"}`,
		"short pass":    `{"email":"a@example.com","password":"short"}`,
		"unknown field": `{"email":"a@example.com","password":"long-enough","admin":true}`,
		"malformed":     `{"email":`,
		"empty":         ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/register", body, 0)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, response.CodeInvalidInput, decodeError(t, rec).Code)
		})
	}
	require.Empty(t, f.accounts.registered)
}

func TestVerifyEmail_Redirects(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/verify/abc", "", 0)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app.example.com/verified", rec.Header().Get("Location"))

	f.accounts.verifyErr = domain.ErrInvalidToken
	rec = f.do(t, http.MethodGet, "/verify/abc", "", 0)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app.example.com/verified?error=1", rec.Header().Get("Location"))
}

func TestLogin(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/login", `{"email":"a@example.com","password":"x"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"token":"tok"}`, rec.Body.String())

	f.accounts.loginErr = domain.ErrInvalidCredentials
	rec = f.do(t, http.MethodPost, "/login", `{"email":"a@example.com","password":"x"}`, 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, response.CodeUnauthorized, decodeError(t, rec).Code)
}

func TestAuthenticatedRoutes_RequireSessionToken(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/userById", "", 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	verify, err := f.tokens.IssueVerification(3)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/getReserveUser", nil)
	req.Header.Set("Authorization", "Bearer "+verify)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/userById", "", 3)
	require.Equal(t, http.StatusOK, rec.Code)
	var u domain.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	require.Equal(t, int64(3), u.ID)
}

func TestEditUser(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPut, "/editUser", `{"name":"Ana"}`, 3)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Ana"`)
}

func TestDeleteUser_OnlySelf(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPut, "/delUser/4", "", 3)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, f.accounts.deleted)

	rec = f.do(t, http.MethodPut, "/delUser/abc", "", 3)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/delUser/3", "", 3)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{3}, f.accounts.deleted)
}

func TestForgetAndResetPassword(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/forget-password", `{"email":"ghost@example.com"}`, 0)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, response.CodeEmailNotFound, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/forget-password", `{"email":"a@example.com"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/reset-password/tok-123", `{"newPassword":"another-secret"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "tok-123", f.accounts.resetToken)
	require.Equal(t, "another-secret", f.accounts.resetPass)
}

func TestContact(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/contact", `{"name":"Ana","email":"a@example.com","message":"hello"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/contact", `{"name":"Ana","email":"a@example.com"}`, 0)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckDates(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/checkDates", `{"start_date":"2024-06-01","end_date":"2024-06-03"}`, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"parcel_id":1,"nights":2}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/checkDates", `{"start_date":"2024-06-01","end_date":"2024-06-01"}`, 7)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveDone(t *testing.T) {
	f := newFixture()
	body := `{"reservation":{"start_date":"2024-06-01","end_date":"2024-06-03","guests":2,"services":[1,2]},"price_cents":20000,"parcel_id":1}`

	rec := f.do(t, http.MethodPost, "/reserveDone", body, 7)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int64(7), f.reservations.createdBy)
	require.Equal(t, []int64{1, 2}, f.reservations.lastReq.Reservation.ServiceIDs)

	f.reservations.createErr = fmt.Errorf("reserve parcel days: %w", domain.ErrNoAvailability)
	rec = f.do(t, http.MethodPost, "/reserveDone", body, 7)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, response.CodeNoAvailability, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/reserveDone", `{"reservation":{"start_date":"2024-06-01","end_date":"2024-06-03","guests":0},"parcel_id":1}`, 7)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReserveByID(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/getReserveById/5", "", 7)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/getReserveById/5", "", 8)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/getReserveById/zero", "", 7)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndpointsReturnArrays(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/getReserveUser", "", 7)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/getService", "", 7)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/getReserveService", `{"booking_id":5}`, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Breakfast")

	rec = f.do(t, http.MethodGet, "/getServiceByReserve/5", "", 7)
	require.JSONEq(t, `{"booking_id":5,"count":1,"total_cents":1500,"services":null}`, rec.Body.String())
}

func TestReserveDeleteAndUpdate(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPut, "/reserveDelete", `{"booking_id":5}`, 8)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/reserveDelete", `{"booking_id":5}`, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, f.reservations.bookings, int64(5))

	rec = f.do(t, http.MethodPut, "/reserveUpdate", `{"booking_id":5,"start_date":"2024-06-01","end_date":"2024-06-04"}`, 7)
	require.Equal(t, http.StatusConflict, rec.Code)
}
