package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/paulmach/orb"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hupe1980/worklist/gdb"
	"github.com/hupe1980/worklist/geom"
	"github.com/hupe1980/worklist/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")

// Feature is one authoritative row.
type Feature struct {
	TableID      int64 `gorm:"primaryKey;autoIncrement:false"`
	RowID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Shape        []byte
	GeometryType string `gorm:"size:32"`
}

// TableName implements gorm's tabler.
func (Feature) TableName() string { return "features" }

// Options configures a Store.
type Options struct {
	// BufferDistance pads point and line geometries into drawable polygons.
	BufferDistance float64
	// AutoMigrate creates the features table if it does not exist.
	AutoMigrate bool
	Logger      *slog.Logger
}

// Store is a gorm-backed gdb.Store.
type Store struct {
	driver string
	db     *gorm.DB
	sqlDB  *sql.DB
	opts   Options
	logger *slog.Logger
}

var _ gdb.Store = (*Store)(nil)

// Open connects to the database identified by driver and dsn.
func Open(driver, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{AutoMigrate: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if opts.AutoMigrate {
		if err := db.AutoMigrate(&Feature{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	s := &Store{
		driver: driver,
		db:     db,
		sqlDB:  sqlDB,
		opts:   opts,
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
}

// Put inserts or replaces the row identified by id.
func (s *Store) Put(ctx context.Context, id model.Identity, g orb.Geometry) error {
	shape, err := geom.MarshalWKB(g)
	if err != nil {
		return err
	}

	f := Feature{
		TableID:      id.TableID,
		RowID:        id.RowID,
		Shape:        shape,
		GeometryType: model.GeometryTypeOf(g).String(),
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&f).Error
}

// Delete removes the row identified by id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id model.Identity) error {
	return s.db.WithContext(ctx).
		Where("table_id = ? AND row_id = ?", id.TableID, id.RowID).
		Delete(&Feature{}).Error
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// OpenSession pins a dedicated connection and wraps it in a gorm handle.
func (s *Store) OpenSession(ctx context.Context) (gdb.Session, error) {
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var dialector gorm.Dialector
	switch s.driver {
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{Conn: conn})
	default:
		dialector = sqlite.New(sqlite.Config{Conn: conn})
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.logger.Debug("store session opened", "driver", s.driver)

	return &session{
		db:             db,
		conn:           conn,
		bufferDistance: s.opts.BufferDistance,
	}, nil
}

type session struct {
	db             *gorm.DB
	conn           *sql.Conn
	bufferDistance float64
	closed         bool
}

func (s *session) RefreshGeometry(ctx context.Context, item *model.WorkItem) error {
	if s.closed {
		return gdb.ErrClosed
	}

	var f Feature
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND row_id = ?", item.Identity.TableID, item.Identity.RowID).
		Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", item.Identity, gdb.ErrRowNotFound)
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", item.Identity, err)
	}

	g, err := geom.UnmarshalWKB(f.Shape)
	if err != nil {
		return fmt.Errorf("%s: %w", item.Identity, err)
	}

	item.SetBufferedGeometry(geom.Buffer(g, s.bufferDistance))
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
