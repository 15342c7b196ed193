package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

var challengeRowColumns = []string{"id", "school_id", "title", "description", "trait", "pathway", "subcategory", "points", "active", "created_at"}

func TestChallengeRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(school_id IS NULL OR school_id = $1) AND pathway = $2 AND trait = $3")).
		WithArgs("school-1", models.PathwaySchoolLed, "courage").
		WillReturnRows(sqlmock.NewRows(challengeRowColumns).
			AddRow("ch-1", nil, "Speak up", "", "courage", "SCHOOL_LED", "voice", 20, true, time.Now()))

	items, err := repo.List(context.Background(), models.ChallengeFilter{
		SchoolID: "school-1",
		Pathway:  models.PathwaySchoolLed,
		Trait:    "courage",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].SchoolID)
	require.Equal(t, 20, items[0].Points)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepositoryFindByIDsSkipsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	items, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, items)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows(challengeRowColumns).
			AddRow("ch-1", "school-1", "Kindness week", "", "kindness", "INDEPENDENT_LED", "", 15, true, time.Now()))
	items, err = repo.FindByIDs(context.Background(), []string{"ch-1", "ch-9"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "school-1", *items[0].SchoolID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepositoryCountAssigned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM challenges")).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	total, err := repo.CountAssigned(context.Background(), "school-1")
	require.NoError(t, err)
	require.Equal(t, 10, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
