package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/shared"
)

// newMockCustomerRepository creates a GormCustomerRepository with a mocked SQL connection
func newMockCustomerRepository(t *testing.T) (*GormCustomerRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormCustomerRepository(gormDB), mock, mockDB
}

func TestGormCustomerRepository_FindByExternalID(t *testing.T) {
	t.Run("finds linked customer", func(t *testing.T) {
		repo, mock, mockDB := newMockCustomerRepository(t)
		defer mockDB.Close()

		customerID := uuid.New()
		externalID := "CONT-1001"
		now := time.Now()

		rows := sqlmock.NewRows([]string{"id", "external_id", "company_name", "email", "created_at", "updated_at"}).
			AddRow(customerID, externalID, "Acme Wholesale", "orders@acme.test", now, now)

		mock.ExpectQuery(`SELECT \* FROM "customers" WHERE external_id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(externalID, 1).
			WillReturnRows(rows)

		customer, err := repo.FindByExternalID(context.Background(), externalID)

		assert.NoError(t, err)
		require.NotNil(t, customer)
		assert.Equal(t, customerID, customer.ID)
		require.NotNil(t, customer.ExternalID)
		assert.Equal(t, externalID, *customer.ExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for unknown record", func(t *testing.T) {
		repo, mock, mockDB := newMockCustomerRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "customers" WHERE external_id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("CONT-MISSING", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		customer, err := repo.FindByExternalID(context.Background(), "CONT-MISSING")

		assert.Nil(t, customer)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCustomerRepository_FindByEmail(t *testing.T) {
	t.Run("matches case-insensitively", func(t *testing.T) {
		repo, mock, mockDB := newMockCustomerRepository(t)
		defer mockDB.Close()

		customerID := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows([]string{"id", "company_name", "email", "created_at", "updated_at"}).
			AddRow(customerID, "Acme Wholesale", "Orders@Acme.test", now, now)

		mock.ExpectQuery(`SELECT \* FROM "customers" WHERE LOWER\(email\) = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("orders@acme.test", 1).
			WillReturnRows(rows)

		customer, err := repo.FindByEmail(context.Background(), "Orders@Acme.TEST")

		assert.NoError(t, err)
		require.NotNil(t, customer)
		assert.Equal(t, customerID, customer.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty email short-circuits to not found", func(t *testing.T) {
		repo, _, mockDB := newMockCustomerRepository(t)
		defer mockDB.Close()

		customer, err := repo.FindByEmail(context.Background(), "")

		assert.Nil(t, customer)
		assert.Equal(t, shared.ErrNotFound, err)
	})
}
