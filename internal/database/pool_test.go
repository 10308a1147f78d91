package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, DialectPostgres, manager.Dialect())
	assert.Equal(t, config, manager.config)
	assert.Equal(t, 10, manager.GetStats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, testPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, manager.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	// 第一次死锁回滚，第二次提交
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("duplicate key value violates unique constraint")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	// 重复关闭为空操作
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, manager.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckLoop(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)
	mock.MatchExpectationsInOrder(false)

	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		mock.ExpectPing()
	}
	time.Sleep(70 * time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.db")

	manager, err := Open(context.Background(), DialectSQLite, path, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, DialectSQLite, manager.Dialect())
	assert.Equal(t, 1, manager.GetStats().MaxOpenConnections)

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE TABLE probe (id TEXT PRIMARY KEY)").Error; err != nil {
			return err
		}
		return tx.Exec("INSERT INTO probe (id) VALUES (?)", "a").Error
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, manager.DB().Table("probe").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "", DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mariadb", DialectMySQL, false},
		{"sqlite3", DialectSQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("Lock wait timeout exceeded"), true},
		{errors.New("syntax error at or near"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}
