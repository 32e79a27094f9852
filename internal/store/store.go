// Package store keeps crime records in Postgres so the service can start
// without the source spreadsheet.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CrimeRow is the persisted form of a dataset.Record.
type CrimeRow struct {
	ID       uint     `gorm:"primaryKey"`
	Dataset  string   `gorm:"index;not null"`
	Year     int      `gorm:"index:idx_crime_key;not null"`
	Region   string   `gorm:"index:idx_crime_key;not null"`
	Category string   `gorm:"index:idx_crime_key;not null"`
	Count    int      `gorm:"not null"`
	Rate     *float64 `gorm:"type:double precision"`
	LoadedAt time.Time
}

// TableName pins the table name.
func (CrimeRow) TableName() string { return "crime_records" }

// ErrEmpty is returned when a load finds no rows.
var ErrEmpty = errors.New("no crime records stored")

// batchSize bounds rows per INSERT statement.
const batchSize = 500

// Connect opens Postgres and migrates the schema. verbose logs every query.
func Connect(dsn string, verbose bool) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database_url is empty")
	}
	lvl := logger.Warn
	if verbose {
		lvl = logger.Info
	}
	lg := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if err := db.AutoMigrate(&CrimeRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// ToRows converts records for insertion under the given dataset name.
func ToRows(name string, recs []dataset.Record, at time.Time) []CrimeRow {
	rows := make([]CrimeRow, len(recs))
	for i, r := range recs {
		rows[i] = CrimeRow{
			Dataset:  name,
			Year:     r.Year,
			Region:   r.Region,
			Category: r.Category,
			Count:    r.Count,
			Rate:     r.Rate,
			LoadedAt: at,
		}
	}
	return rows
}

// FromRows rebuilds a dataset from stored rows.
func FromRows(name string, rows []CrimeRow) *dataset.Dataset {
	recs := make([]dataset.Record, len(rows))
	for i, r := range rows {
		recs[i] = dataset.Record{Year: r.Year, Region: r.Region, Category: r.Category, Count: r.Count, Rate: r.Rate}
	}
	return dataset.New(name, recs)
}

// Import writes ds under its name. With replace, earlier rows of the same
// dataset are removed in the same transaction.
func Import(ctx context.Context, db *gorm.DB, ds *dataset.Dataset, replace bool) (int, error) {
	rows := ToRows(ds.Name(), ds.Records(), time.Now().UTC())
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := tx.Where("dataset = ?", ds.Name()).Delete(&CrimeRow{}).Error; err != nil {
				return fmt.Errorf("clear dataset %s: %w", ds.Name(), err)
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Load reads the dataset stored under name; empty name reads every row.
func Load(ctx context.Context, db *gorm.DB, name string) (*dataset.Dataset, error) {
	var rows []CrimeRow
	q := db.WithContext(ctx).Order("id")
	if name != "" {
		q = q.Where("dataset = ?", name)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load crime records: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	if name == "" {
		name = rows[0].Dataset
	}
	return FromRows(name, rows), nil
}

// Datasets lists stored dataset names with their row counts.
func Datasets(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	type agg struct {
		Dataset string
		N       int64
	}
	var out []agg
	err := db.WithContext(ctx).Model(&CrimeRow{}).
		Select("dataset, count(*) as n").Group("dataset").Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	m := make(map[string]int64, len(out))
	for _, a := range out {
		m[a.Dataset] = a.N
	}
	return m, nil
}
