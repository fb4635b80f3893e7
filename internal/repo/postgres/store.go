package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Users() UsersRepo
	Bookings() BookingRepo
}

// Store is the persistence collaborator the services depend on. Reads go
// through the pool; multi-step writes go through WithinTx.
type Store interface {
	Tx
	Catalog() CatalogRepo
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type StoreImpl struct {
	db       TxBeginner
	users    *UsersRepoImpl
	bookings *BookingRepoImpl
	catalog  *CatalogRepoImpl
}

// NewStore accepts a *pgxpool.Pool (or any pool-shaped TxBeginner).
func NewStore(db TxBeginner) *StoreImpl {
	return &StoreImpl{
		db:       db,
		users:    NewUsersRepo(db),
		bookings: NewBookingRepo(db),
		catalog:  NewCatalogRepo(db),
	}
}

func (s *StoreImpl) Users() UsersRepo      { return s.users }
func (s *StoreImpl) Bookings() BookingRepo { return s.bookings }
func (s *StoreImpl) Catalog() CatalogRepo  { return s.catalog }

func (s *StoreImpl) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(txRepos{users: NewUsersRepo(tx), bookings: NewBookingRepo(tx)})
	})
}

type txRepos struct {
	users    *UsersRepoImpl
	bookings *BookingRepoImpl
}

func (t txRepos) Users() UsersRepo      { return t.users }
func (t txRepos) Bookings() BookingRepo { return t.bookings }
