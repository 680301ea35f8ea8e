package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// TestDataConfig specifies what kind of test store to build
type TestDataConfig struct {
	NumSymbols int       // Number of stock symbols
	NumDays    int       // Number of days of data
	BarsPerDay int       // Number of bars per day (1=daily, 24=hourly, 390=minute)
	OutputPath string    // Where to store the database
	Collection string    // Collection the bars are written to
	StartDate  time.Time // Start date for data generation
}

// DefaultOHLCConfig returns a small OHLC dataset for profiling.
// 10 symbols x 30 days x 24 hours = 7,200 bars.
func DefaultOHLCConfig() TestDataConfig {
	return TestDataConfig{
		NumSymbols: 10,
		NumDays:    30,
		BarsPerDay: 24,
		OutputPath: "testdata/ohlc_benchmark.db",
		Collection: "bars",
		StartDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// MediumOHLCConfig returns a medium-sized dataset.
// 50 symbols x 30 days x 24 hours = 36,000 bars.
func MediumOHLCConfig() TestDataConfig {
	cfg := DefaultOHLCConfig()
	cfg.NumSymbols = 50
	cfg.OutputPath = "testdata/ohlc_medium.db"
	return cfg
}

// LargeOHLCConfig returns a large dataset for stress testing
func LargeOHLCConfig() TestDataConfig {
	return TestDataConfig{
		NumSymbols: 500,
		NumDays:    365,
		BarsPerDay: 390,
		OutputPath: "testdata/ohlc_large.db",
		Collection: "bars",
		StartDate:  time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
	}
}

// BuildTestStore creates a store at cfg.OutputPath filled with generated
// bars, replacing whatever was there.
func BuildTestStore(cfg TestDataConfig, progress func(written, total int)) (*Store, error) {
	if err := os.RemoveAll(cfg.OutputPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "removing existing store")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating directory")
	}
	s, err := Open(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	bars := GenerateOHLCBars(cfg)
	const batchSize = 5000
	for start := 0; start < len(bars); start += batchSize {
		end := start + batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := s.Insert(cfg.Collection, bars[start:end]...); err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "writing bars %d-%d", start, end)
		}
		if progress != nil {
			progress(end, len(bars))
		}
	}
	return s, nil
}

// GenerateOHLCBars creates one document per bar, symbol by symbol in
// time order. Prices follow a deterministic walk.
func GenerateOHLCBars(cfg TestDataConfig) []aql.Value {
	bars := make([]aql.Value, 0, cfg.NumSymbols*cfg.NumDays*cfg.BarsPerDay)
	for symbolIdx := 0; symbolIdx < cfg.NumSymbols; symbolIdx++ {
		symbol := fmt.Sprintf("TICK%04d", symbolIdx)
		basePrice := 100.0 + float64(symbolIdx)*10.0

		for day := 0; day < cfg.NumDays; day++ {
			for bar := 0; bar < cfg.BarsPerDay; bar++ {
				minutesPerBar := (24 * 60) / cfg.BarsPerDay
				barTime := cfg.StartDate.AddDate(0, 0, day).Add(time.Duration(bar*minutesPerBar) * time.Minute)

				open := basePrice + float64(day)*0.1 + float64(bar)*0.01
				bars = append(bars, map[string]aql.Value{
					"symbol":      symbol,
					"time":        barTime.Format(time.RFC3339),
					"minuteOfDay": int64(bar * minutesPerBar),
					"open":        open,
					"high":        open + 2.0,
					"low":         open - 1.5,
					"close":       open + 0.5,
				})
			}
		}
	}
	return bars
}
