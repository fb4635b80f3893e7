package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/internal/platform/mailer"
	"github.com/diagnosis/parcel-bookings/internal/repo/postgres"
	"github.com/diagnosis/parcel-bookings/internal/utils"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
	"github.com/diagnosis/parcel-bookings/pkg/events"
)

type AccountService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	EditUser(ctx context.Context, id int64, req domain.EditUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ForgetPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	SendContact(ctx context.Context, req domain.ContactRequest) error
}

type accountService struct {
	store  postgres.Store
	tokens *auth.TokenManager
	mailer mailer.Dispatcher
	events events.Publisher
}

func NewAccountService(store postgres.Store, tokens *auth.TokenManager, m mailer.Dispatcher, pub events.Publisher) AccountService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &accountService{store: store, tokens: tokens, mailer: m, events: pub}
}

// Register creates an unverified user and sends the verification email in
// the same transaction. If the email cannot be dispatched the user row is
// rolled back, so no account is left that can never be verified.
func (s *accountService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := domain.NormalizeEmail(req.Email)

	_, err := s.store.Users().FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, domain.ErrDuplicateEmail
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *domain.User
	err = s.store.WithinTx(ctx, func(tx postgres.Tx) error {
		u, err := tx.Users().Register(ctx, postgres.NewUser{
			Email:        email,
			PasswordHash: hash,
			Name:         utils.NormalizeString(req.Name),
			LastName:     utils.NormalizeString(req.LastName),
		})
		if err != nil {
			return err
		}

		token, err := s.tokens.IssueVerification(u.ID)
		if err != nil {
			return fmt.Errorf("issue verification token: %w", err)
		}
		if err := s.mailer.SendVerification(ctx, mailer.VerificationMessage{
			UserID: u.ID,
			Email:  u.Email,
			Name:   u.Name,
			Token:  token,
		}); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, events.UserRegistered, events.UserRegisteredEvent{
		UserID:       user.ID,
		Email:        user.Email,
		RegisteredAt: user.CreatedAt,
	})
	return user, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.tokens.ParseVerification(token)
	if err != nil || claims.Purpose != auth.PurposeVerification {
		return domain.ErrInvalidToken
	}
	if err := s.store.Users().ConfirmUser(ctx, claims.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("confirm user: %w", err)
	}
	return nil
}

// Login answers ErrInvalidCredentials for unknown, unverified and
// wrong-password attempts alike.
func (s *accountService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	u, err := s.store.Users().FindByEmailLogin(ctx, domain.NormalizeEmail(req.Email))
	if errors.Is(err, domain.ErrNotFound) {
		auth.BurnPasswordCheck(req.Password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.IssueSession(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &domain.LoginResponse{Token: token}, nil
}

func (s *accountService) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.Users().FindByID(ctx, id)
}

func (s *accountService) EditUser(ctx context.Context, id int64, req domain.EditUserRequest) (*domain.User, error) {
	if req.Name != nil {
		name := utils.NormalizeString(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be blank", domain.ErrInvalidInput)
		}
		req.Name = &name
	}
	if req.LastName != nil {
		last := utils.NormalizeString(*req.LastName)
		req.LastName = &last
	}
	if req.Phone != nil {
		if !utils.IsValidPhone(*req.Phone) {
			return nil, fmt.Errorf("%w: invalid phone number", domain.ErrInvalidInput)
		}
		phone := utils.NormalizePhone(*req.Phone)
		req.Phone = &phone
	}

	u, err := s.store.Users().EditUserByID(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("edit user %d: %w", id, err)
	}
	return u, nil
}

func (s *accountService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.Users().DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

func (s *accountService) ForgetPassword(ctx context.Context, email string) error {
	u, err := s.store.Users().FindByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrEmailNotFound
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	token, err := s.tokens.IssueReset(u.ID)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	return s.mailer.SendPasswordReset(ctx, mailer.ResetMessage{Email: u.Email, Token: token})
}

func (s *accountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.ParseReset(token)
	if err != nil {
		return domain.ErrInvalidToken
	}
	if claims.Purpose != auth.PurposePasswordReset {
		return domain.ErrInvalidToken
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Users().UpdatePassword(ctx, claims.UserID, hash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *accountService) SendContact(ctx context.Context, req domain.ContactRequest) error {
	return s.mailer.SendContact(ctx, mailer.ContactMessage{
		Name:    req.Name,
		Email:   domain.NormalizeEmail(req.Email),
		Message: req.Message,
	})
}
