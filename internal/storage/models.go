package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures an emitted calibration alert for de-duplication and
// auditing.
type AlertRecord struct {
	ID        int64
	RunTS     time.Time
	Source    string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// AccuracyPoint is one historical accuracy observation for a source,
// appended after every calibration run.
type AccuracyPoint struct {
	Source          string
	SampleCount     int
	AccuracyPercent decimal.Decimal
	RecordedAt      time.Time
}
