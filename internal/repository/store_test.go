package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendByte(b byte) UpdateFunc {
	return func(cur []byte) ([]byte, error) {
		return append(append([]byte(nil), cur...), b), nil
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "rd:", 100), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "k", []byte("v1")))
			v, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", string(v))

			require.NoError(t, s.Update(ctx, "k", appendByte('!')))
			v, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1!", string(v))

			// nil result leaves the key alone
			require.NoError(t, s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, nil }))
			v, _ = s.Get(ctx, "k")
			assert.Equal(t, "v1!", string(v))

			boom := errors.New("boom")
			err = s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, boom })
			assert.ErrorIs(t, err, boom)

			require.NoError(t, s.Update(ctx, "fresh", func(cur []byte) ([]byte, error) {
				assert.Nil(t, cur)
				return []byte("x"), nil
			}))
		})
	}
}

func TestStoresConcurrentUpdateLosesNothing(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 10

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, s.Update(ctx, "counter", appendByte('a')))
				}()
			}
			wg.Wait()

			v, err := s.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Len(t, v, n)
		})
	}
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, s.Set(context.Background(), "repo:a/b", []byte("[]")))

	got, err := mr.Get("rd:repo:a/b")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestMySQLStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewMySQLStore(sqlx.NewDb(db, "mysql")), mock
	}

	t.Run("get missing", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT v FROM kv WHERE k = ?")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"v"}))

		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get placeholder row", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT v FROM kv WHERE k = ?")).
			WithArgs("k").
			WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte{}))

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update locks and writes", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv (k, v, updated_at)")).
			WithArgs("k").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("k").
			WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte("ab")))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE kv")).
			WithArgs([]byte("abc"), "k").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Update(ctx, "k", appendByte('c')))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update aborted by fn rolls back", func(t *testing.T) {
		s, mock := newStore(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv (k, v, updated_at)")).
			WithArgs("k").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("k").
			WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte{}))
		mock.ExpectRollback()

		err := s.Update(ctx, "k", func(cur []byte) ([]byte, error) {
			assert.Nil(t, cur)
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNopDeliveryLog(t *testing.T) {
	var l DeliveryLog = NopDeliveryLog{}
	assert.NoError(t, l.Record(context.Background(), deliveryFixture(1)))
	rows, err := l.ListByChannel(context.Background(), "T", "C", 10, 0)
	assert.NoError(t, err)
	assert.Empty(t, rows)
}
