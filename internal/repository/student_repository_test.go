package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

var studentRowColumns = []string{"id", "school_id", "year_level", "display_name", "avatar_url", "award_tier", "grit_bit_points", "created_at", "updated_at"}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("stu-1", "school-1", 5, "Ana", nil, "bronze", 60, now, now))

	student, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, "Ana", student.DisplayName)
	require.Equal(t, models.AwardTierBronze, student.AwardTier)
	require.Equal(t, 60, student.GritBitPoints)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListBySchoolFiltersYearLevel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	year := 6
	mock.ExpectQuery(regexp.QuoteMeta("WHERE school_id = $1 AND year_level = $2")).
		WithArgs("school-1", 6).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("stu-2", "school-1", 6, "Ben", nil, "none", 0, now, now))

	students, err := repo.ListBySchool(context.Background(), models.StudentFilter{SchoolID: "school-1", YearLevel: &year})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateDefaultsTier(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).WillReturnResult(sqlmock.NewResult(1, 1))
	student := &models.Student{SchoolID: "school-1", YearLevel: 4, DisplayName: "Cai"}
	require.NoError(t, repo.Create(context.Background(), student))
	require.NotEmpty(t, student.ID)
	require.Equal(t, models.AwardTierNone, student.AwardTier)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET award_tier")).
		WithArgs(student.ID, models.AwardTierSilver, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateAwardTier(context.Background(), student.ID, models.AwardTierSilver))
	require.NoError(t, mock.ExpectationsWereMet())
}
