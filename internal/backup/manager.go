package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cloud-clicker/internal/storage"
)

// Manager periodically snapshots the sqlite database and uploads the snapshot
// to object storage. Snapshot failures are logged and retried at the next
// tick; they never affect request handling.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
}

type Config struct {
	Bucket    string
	KeyPrefix string
	Interval  time.Duration
	Keep      int
	Logger    *logrus.Logger
}

type manager struct {
	cfg     Config
	db      *sql.DB
	storage storage.Service

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(cfg Config, db *sql.DB, store storage.Service) Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "snapshots"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		db:      db,
		storage: store,
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.cfg.Bucket == "" {
		return fmt.Errorf("backup bucket is required")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop()
	m.cfg.Logger.Infof("backup manager started, interval %s, bucket %s", m.cfg.Interval, m.cfg.Bucket)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("backup manager stopped")
}

func (m *manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.snapshot(m.ctx); err != nil {
				m.cfg.Logger.Warnf("snapshot: %v", err)
			}
		}
	}
}

func (m *manager) snapshot(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "clicker-snapshot-")
	if err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// VACUUM INTO writes a consistent copy without blocking concurrent readers.
	local := filepath.Join(dir, "clicker.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, local); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/%s.db",
		strings.Trim(m.cfg.KeyPrefix, "/"),
		time.Now().UTC().Format("20060102T150405Z"),
	)
	location, err := m.storage.UploadFile(ctx, local, m.cfg.Bucket, key)
	if err != nil {
		return err
	}
	m.cfg.Logger.Infof("snapshot uploaded to %s", location)

	if err := m.prune(ctx); err != nil {
		m.cfg.Logger.Warnf("prune snapshots: %v", err)
	}
	return nil
}

// prune removes the oldest snapshots beyond the configured retention count.
// Snapshot keys embed a UTC timestamp, so lexical order is chronological.
func (m *manager) prune(ctx context.Context) error {
	prefix := strings.Trim(m.cfg.KeyPrefix, "/") + "/"
	objects, err := m.storage.ListObjects(ctx, m.cfg.Bucket, prefix)
	if err != nil {
		return err
	}
	if len(objects) <= m.cfg.Keep {
		return nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	for _, obj := range objects[:len(objects)-m.cfg.Keep] {
		if err := m.storage.DeleteObject(ctx, m.cfg.Bucket, obj.Key); err != nil {
			return err
		}
	}
	return nil
}
