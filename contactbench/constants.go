package contactbench

import "time"

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000

	DefaultQueryTimeout = 30 * time.Second
	DefaultPollInterval = 25 * time.Millisecond
)
