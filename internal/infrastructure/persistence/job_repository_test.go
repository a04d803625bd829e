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
	domainsync "github.com/storefront/backend/internal/domain/sync"
)

func newMockJobRepository(t *testing.T) (*GormJobRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormJobRepository(gormDB), mock, mockDB
}

func TestGormJobRepository_FindByID(t *testing.T) {
	t.Run("finds existing job", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		jobID := uuid.New()
		entityID := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows([]string{"id", "type", "entity_id", "idempotency_key", "status", "attempts", "max_attempts", "created_at", "updated_at"}).
			AddRow(jobID, "CREATE_CUSTOMER", entityID, "CREATE_CUSTOMER:"+entityID.String(), "PENDING", 0, 5, now, now)

		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(jobID, 1).
			WillReturnRows(rows)

		job, err := repo.FindByID(context.Background(), jobID)

		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, domainsync.JobTypeCreateCustomer, job.Type)
		assert.Equal(t, domainsync.JobStatusPending, job.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for unknown job", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		jobID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(jobID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		job, err := repo.FindByID(context.Background(), jobID)

		assert.Nil(t, job)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_ClaimPending(t *testing.T) {
	t.Run("locks due jobs and marks them processing", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		jobA := uuid.New()
		jobB := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows([]string{"id", "type", "entity_id", "idempotency_key", "status", "attempts", "max_attempts", "created_at", "updated_at"}).
			AddRow(jobA, "CREATE_CUSTOMER", uuid.New(), "k-a", "PENDING", 0, 5, now, now).
			AddRow(jobB, "PUSH_ORDER", uuid.New(), "k-b", "FAILED", 2, 5, now.Add(time.Second), now)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE \(status = \$1 OR \(status = \$2 AND next_retry_at <= \$3\)\) AND \(?NOT EXISTS \([\s\S]*earlier\.entity_id = sync_jobs\.entity_id[\s\S]*earlier\.created_at < sync_jobs\.created_at[\s\S]*\)[\s\S]*ORDER BY created_at ASC LIMIT .* FOR UPDATE SKIP LOCKED`).
			WithArgs("PENDING", "FAILED", sqlmock.AnyArg(), "COMPLETED", "DEAD", 10).
			WillReturnRows(rows)
		mock.ExpectExec(`UPDATE "sync_jobs" SET "last_attempt_at"=\$1,"status"=\$2,"updated_at"=\$3 WHERE id IN \(\$4,\$5\)`).
			WithArgs(sqlmock.AnyArg(), "PROCESSING", sqlmock.AnyArg(), jobA, jobB).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		claimed, err := repo.ClaimPending(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, claimed, 2)
		for _, job := range claimed {
			assert.Equal(t, domainsync.JobStatusProcessing, job.Status)
			require.NotNil(t, job.LastAttemptAt)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claims nothing when no job is due", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE [\s\S]*FOR UPDATE SKIP LOCKED`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		claimed, err := repo.ClaimPending(context.Background(), 10)

		require.NoError(t, err)
		assert.Empty(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_CountByStatus(t *testing.T) {
	t.Run("groups counts by status", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 3).
			AddRow("DEAD", 1)

		mock.ExpectQuery(`SELECT status, COUNT\(\*\) as count FROM "sync_jobs" GROUP BY .*`).
			WillReturnRows(rows)

		counts, err := repo.CountByStatus(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int64(3), counts[domainsync.JobStatusPending])
		assert.Equal(t, int64(1), counts[domainsync.JobStatusDead])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_DeleteCompletedBefore(t *testing.T) {
	t.Run("deletes old completed jobs", func(t *testing.T) {
		repo, mock, mockDB := newMockJobRepository(t)
		defer mockDB.Close()

		cutoff := time.Now().Add(-7 * 24 * time.Hour)

		mock.ExpectExec(`DELETE FROM "sync_jobs" WHERE status = \$1 AND completed_at < \$2`).
			WithArgs("COMPLETED", cutoff).
			WillReturnResult(sqlmock.NewResult(0, 4))

		removed, err := repo.DeleteCompletedBefore(context.Background(), cutoff)

		assert.NoError(t, err)
		assert.Equal(t, int64(4), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
