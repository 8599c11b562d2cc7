package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nater540/yggdrasil/record"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return db, mock
}

func testEntities() []record.Entity {
	return []record.Entity{
		{
			Name:       "project",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "name", Kind: record.KindString},
				{Name: "owner_id", Kind: record.KindID, Nullable: true},
			},
			Associations: []record.Association{
				{Name: "tickets", Target: "ticket", HasMany: true, ForeignKey: "project_id"},
				{Name: "owner", Target: "user", BelongsTo: true, ForeignKey: "owner_id"},
			},
		},
		{
			Name:       "ticket",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "title", Kind: record.KindString},
				{Name: "project_id", Kind: record.KindID, Nullable: true},
			},
		},
		{
			Name:       "user",
			PrimaryKey: "id",
			Attributes: []record.Attribute{
				{Name: "id", Kind: record.KindID},
				{Name: "email", Kind: record.KindString},
			},
		},
	}
}

const selectProjectSQL = "SELECT `id`, `name`, `owner_id` FROM `projects` WHERE `id` = ? ORDER BY `id` LIMIT 1"

func projectRows(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "owner_id"}).AddRow(id, name, nil)
}

func TestFindLoadsAndCachesRow(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	first, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)
	assert.Equal(t, "alpha", first.GetAttribute("name"))
	assert.Equal(t, int64(7), first.ID())
	assert.False(t, first.IsNew())

	// Second lookup hits the identity cache, not the database.
	second, err := store.Find(context.Background(), "project", "7")
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id"}))

	_, err := store.Find(context.Background(), "project", int64(404))
	require.Error(t, err)
	assert.True(t, record.IsNotFound(err))

	var nf *record.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Entity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertsNewRowAndAssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	project, err := store.New("project")
	require.NoError(t, err)
	project.SetAttribute("name", "alpha")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("alpha").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), project)
	})
	require.NoError(t, err)

	assert.False(t, project.IsNew())
	assert.Equal(t, int64(3), project.ID())
	assert.Equal(t, int64(3), project.GetAttribute("id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdatesOnlyDirtyColumns(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	project, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)
	project.SetAttribute("name", "beta")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `projects` SET `name` = ? WHERE `id` = ?")).
		WithArgs("beta", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), project)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWithNoChangesIssuesNoUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	project, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)
	project.SetAttribute("name", "alpha")

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), project)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAppliesDeferredForeignKeys(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	project, err := store.New("project")
	require.NoError(t, err)
	project.SetAttribute("name", "alpha")

	ticket, err := store.BuildChild(project, "tickets")
	require.NoError(t, err)
	ticket.SetAttribute("title", "first")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `tickets` (`title`,`project_id`) VALUES (?,?)")).
		WithArgs("first", int64(1)).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		if err := tx.Save(context.Background(), project); err != nil {
			return err
		}
		return tx.Save(context.Background(), ticket)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ticket.GetAttribute("project_id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBelongsToFillUpdatesPersistedHolder(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	project, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)

	owner, err := store.BuildChild(project, "owner")
	require.NoError(t, err)
	owner.SetAttribute("email", "a@example.com")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users` (`email`) VALUES (?)")).
		WithArgs("a@example.com").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `projects` SET `owner_id` = ? WHERE `id` = ?")).
		WithArgs(int64(5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), owner)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), project.GetAttribute("owner_id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationFailureRollsBackTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())
	store.Validator("ticket", func(r record.Record) []record.FieldError {
		if r.GetAttribute("title") == nil {
			return []record.FieldError{{Attribute: "title", Message: "can't be blank"}}
		}
		return nil
	})

	project, err := store.New("project")
	require.NoError(t, err)
	project.SetAttribute("name", "alpha")

	ticket, err := store.BuildChild(project, "tickets")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		if err := tx.Save(context.Background(), project); err != nil {
			return err
		}
		return tx.Save(context.Background(), ticket)
	})
	require.Error(t, err)
	assert.True(t, record.IsInvalid(err))

	// The aborted insert leaves the project unsaved, with its working
	// attributes intact for error reporting.
	assert.True(t, project.IsNew())
	assert.Nil(t, project.ID())
	assert.Equal(t, "alpha", project.GetAttribute("name"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConcurrentTransactionRollbackKeepsCommittedWrites(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	store := New(db, testEntities())

	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("durable").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("doomed").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	durable, err := store.New("project")
	require.NoError(t, err)
	durable.SetAttribute("name", "durable")

	doomed, err := store.New("project")
	require.NoError(t, err)
	doomed.SetAttribute("name", "doomed")

	boom := errors.New("boom")
	entered := make(chan struct{})
	committed := make(chan struct{})
	done := make(chan struct{})

	// A failing transaction that starts before the commit below and rolls
	// back after it.
	go func() {
		defer close(done)
		err := store.Transaction(context.Background(), func(tx record.Tx) error {
			close(entered)
			<-committed
			if err := tx.Save(context.Background(), doomed); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
	}()

	<-entered
	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), durable)
	})
	require.NoError(t, err)
	close(committed)
	<-done

	// The overlapping rollback undoes only its own bookkeeping.
	assert.False(t, durable.IsNew())
	require.NotNil(t, durable.ID())
	found, err := store.Find(context.Background(), "project", durable.ID())
	require.NoError(t, err)
	assert.Same(t, durable, found)
	assert.True(t, doomed.IsNew())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsBecomeTypedErrors(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	project, err := store.New("project")
	require.NoError(t, err)
	project.SetAttribute("name", "alpha")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `projects` (`name`) VALUES (?)")).
		WithArgs("alpha").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alpha'"})
	mock.ExpectRollback()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Save(context.Background(), project)
	})
	require.Error(t, err)

	var conflict *record.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "project", conflict.Entity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForeignKeyViolationBecomesConstraintError(t *testing.T) {
	assert.IsType(t, &record.ConstraintError{},
		normalizeError("ticket", &mysql.MySQLError{Number: 1452, Message: "fk fails"}))
	assert.IsType(t, &record.ConstraintError{},
		normalizeError("ticket", &mysql.MySQLError{Number: 1048, Message: "null"}))

	passthrough := &mysql.MySQLError{Number: 1205, Message: "lock wait timeout"}
	assert.Equal(t, passthrough, normalizeError("ticket", passthrough))
}

func TestDeleteRemovesRowAndEvictsCache(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	project, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `projects` WHERE `id` = ?")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Transaction(context.Background(), func(tx record.Tx) error {
		return tx.Delete(context.Background(), project)
	})
	require.NoError(t, err)
	assert.True(t, project.IsNew())

	// A fresh lookup goes back to the database.
	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id"}))

	_, err = store.Find(context.Background(), "project", int64(7))
	assert.True(t, record.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChildManyQueriesByForeignKey(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	store := New(db, testEntities())

	mock.ExpectQuery(regexp.QuoteMeta(selectProjectSQL)).
		WithArgs(int64(7)).
		WillReturnRows(projectRows(7, "alpha"))

	project, err := store.Find(context.Background(), "project", int64(7))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `title`, `project_id` FROM `tickets` WHERE `project_id` = ? ORDER BY `id`")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "project_id"}).
			AddRow(1, "first", 7).
			AddRow(2, "second", 7))

	built, err := store.BuildChild(project, "tickets")
	require.NoError(t, err)
	built.SetAttribute("title", "third")

	tickets, err := store.ChildMany(project, "tickets")
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "first", tickets[0].GetAttribute("title"))
	assert.Equal(t, "second", tickets[1].GetAttribute("title"))
	assert.Same(t, built, tickets[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirtyColumnsIgnoreEquivalentNumericKinds(t *testing.T) {
	r := &row{
		entity: testEntities()[1],
		attrs:  map[string]any{"title": "first", "project_id": 7},
		// Scanned columns come back as int64 even when the engine wrote int.
		persisted: map[string]any{"title": "first", "project_id": int64(7)},
		id:        3,
		saved:     true,
	}
	assert.Empty(t, r.dirtyColumns())

	r.attrs["project_id"] = 8
	dirty := r.dirtyColumns()
	require.Len(t, dirty, 1)
	assert.Equal(t, 8, dirty["project_id"])
}
