package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter uint64

// NewDB opens a private in-memory SQLite database with every model migrated
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbID := atomic.AddUint64(&dbCounter, 1)
	dsn := fmt.Sprintf("file:hubtalk_%d_%s?mode=memory&cache=shared", dbID, uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// CreateUser inserts a directory user
func CreateUser(t *testing.T, db *gorm.DB, name string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{
		Name:  name,
		Email: fmt.Sprintf("%s-%s@hubtalk.test", name, uuid.NewString()[:8]),
		Role:  role,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}
