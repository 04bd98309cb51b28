package domain

import "time"

// Cohort is a tradable bundle of athletes. The core only needs to know
// that it exists and which token it settles in.
type Cohort struct {
	CohortID     string
	Name         string
	Sport        string
	TokenAddress string
	CreatedAt    time.Time
}
