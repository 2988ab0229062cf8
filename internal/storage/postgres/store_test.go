package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/UkralStul/social-feed/internal/storage/notify"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *notify.Local) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	n := notify.NewLocal()
	return NewWithDB(db, n), mock, n
}

func subscribe(t *testing.T, n *notify.Local, topic string) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := n.Subscribe(ctx, topic)
	require.NoError(t, err)
	return ch
}

const (
	lockPostSQL  = `SELECT \* FROM "posts" WHERE id = \$1 ORDER BY .* FOR UPDATE`
	countLikeSQL = `SELECT count\(\*\) FROM "likes" WHERE post_id = \$1 AND user_id = \$2`
)

func TestStore_RunTransactionLocksPostRow(t *testing.T) {
	store, mock, n := newMockStore(t)
	changes := subscribe(t, n, notify.TopicPosts)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "like_count"}).AddRow("p1", "a", 3))
	mock.ExpectQuery(countLikeSQL).
		WithArgs("p1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM "likes" WHERE post_id = \$1 AND user_id = \$2`).
		WithArgs("p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "posts" SET "like_count"=\$1 WHERE id = \$2`).
		WithArgs(int64(2), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		post, err := tx.GetPost(ctx, "p1")
		if err != nil {
			return err
		}
		exists, err := tx.LikeExists(ctx, "p1", "u1")
		if err != nil {
			return err
		}
		require.True(t, exists)
		if err := tx.DeleteLike(ctx, "p1", "u1"); err != nil {
			return err
		}
		return tx.SetLikeCount(ctx, "p1", post.LikeCount-1)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("committed counter change was not published")
	}
}

func TestStore_RunTransactionMissingPostRollsBack(t *testing.T) {
	store, mock, n := newMockStore(t)
	changes := subscribe(t, n, notify.TopicPosts)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "like_count"}))
	mock.ExpectRollback()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetPost(ctx, "gone")
		return err
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	select {
	case <-changes:
		t.Fatal("rolled back transaction must not publish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_SetLikeCountRejectsNegative(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.SetLikeCount(ctx, "p1", -1)
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LikedPostIDs(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT "post_id" FROM "likes" WHERE user_id = \$1 AND post_id IN \(\$2,\$3\)`).
		WithArgs("u1", "p1", "p2").
		WillReturnRows(sqlmock.NewRows([]string{"post_id"}).AddRow("p2"))

	liked, err := store.LikedPostIDs(context.Background(), "u1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": false, "p2": true}, liked)

	// Пустой набор - без запроса
	liked, err = store.LikedPostIDs(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, liked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WatchFollowingRereadsOnSignal(t *testing.T) {
	store, mock, n := newMockStore(t)
	const followingSQL = `SELECT "followee_id" FROM "follows" WHERE follower_id = \$1 ORDER BY followee_id`

	mock.ExpectQuery(followingSQL).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"followee_id"}).AddRow("b"))
	mock.ExpectQuery(followingSQL).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"followee_id"}).AddRow("b").AddRow("c"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := store.WatchFollowing(ctx, "a")
	require.NoError(t, err)

	first := <-ch
	require.NoError(t, first.Err)
	assert.Equal(t, []string{"b"}, first.FolloweeIDs)

	require.NoError(t, n.Publish(ctx, notify.TopicFollowing("a")))
	select {
	case next := <-ch:
		require.NoError(t, next.Err)
		assert.Equal(t, []string{"b", "c"}, next.FolloweeIDs)
	case <-time.After(time.Second):
		t.Fatal("following set was not re-read")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WatchFailsOnFirstRead(t *testing.T) {
	store, mock, _ := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "posts"`).WillReturnError(errors.New("connection reset"))

	_, err := store.WatchPosts(context.Background(), storage.PostQuery{Limit: 10})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
