// Package telemetry persists per-device operational metadata: last-seen
// timestamps and API call counts. It never stores rendered pixel bytes;
// snapshots live only in memory for the process lifetime.
package telemetry

import (
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DeviceTelemetry is the persisted row for one device. BatteryLevel is
// nil unless a firmware eventually reports it; parsing that out of
// /post_log bodies is out of scope, so this field only carries the
// column forward for when that parsing exists.
type DeviceTelemetry struct {
	DeviceID     string `gorm:"primaryKey"`
	LastSeen     time.Time
	APICalls     int64
	BatteryLevel *int
}

type logLine struct {
	At   time.Time
	Text string
}

// Store is the telemetry database plus an in-memory, bounded per-device
// log ring used to back /post_log. Logs are intentionally not
// persisted: they are an operational convenience, not durable state.
type Store struct {
	db *gorm.DB

	logMu       sync.Mutex
	logs        map[string][]logLine
	maxLogLines int
}

// Open opens (creating if necessary) the sqlite telemetry database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DeviceTelemetry{}); err != nil {
		return nil, err
	}
	return &Store{
		db:          db,
		logs:        make(map[string][]logLine),
		maxLogLines: 50,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordCall upserts the device's last-seen timestamp and increments
// its call counter by one.
func (s *Store) RecordCall(deviceID string) error {
	var row DeviceTelemetry
	err := s.db.Where("device_id = ?", deviceID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = DeviceTelemetry{DeviceID: deviceID, LastSeen: time.Now(), APICalls: 1}
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	row.LastSeen = time.Now()
	row.APICalls++
	return s.db.Save(&row).Error
}

// Get returns the stored telemetry row for a device, if any.
func (s *Store) Get(deviceID string) (DeviceTelemetry, bool) {
	var row DeviceTelemetry
	if err := s.db.Where("device_id = ?", deviceID).First(&row).Error; err != nil {
		return DeviceTelemetry{}, false
	}
	return row, true
}

// AppendLog records one log line for a device, dropping the oldest
// entry once the per-device buffer reaches its cap.
func (s *Store) AppendLog(deviceID, text string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	buf := append(s.logs[deviceID], logLine{At: time.Now(), Text: text})
	if len(buf) > s.maxLogLines {
		buf = buf[len(buf)-s.maxLogLines:]
	}
	s.logs[deviceID] = buf
}

// Logs returns a copy of the current log buffer for a device.
func (s *Store) Logs(deviceID string) []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	buf := s.logs[deviceID]
	out := make([]string, len(buf))
	for i, l := range buf {
		out[i] = l.Text
	}
	return out
}
