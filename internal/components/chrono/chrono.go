package chrono

import (
	"time"

	"londoncinemas/lib/timezone"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	// Now returns the current time in Europe/London.
	Now() time.Time
	Location() *time.Location
}

// StandardImpl is the standard implementation of API using the standard library.
type StandardImpl struct{}

func NewStandardImpl() StandardImpl {
	return StandardImpl{}
}

func (StandardImpl) Now() time.Time {
	return time.Now().In(timezone.Location)
}

func (StandardImpl) Location() *time.Location {
	return timezone.Location
}

// Fixed is an API that always reports the same instant.
type Fixed struct {
	At time.Time
}

func NewFixed(at time.Time) Fixed {
	return Fixed{At: at}
}

func (f Fixed) Now() time.Time {
	return f.At.In(timezone.Location)
}

func (Fixed) Location() *time.Location {
	return timezone.Location
}
