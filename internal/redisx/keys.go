package redisx

import "time"

const (
	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Dashboard KPI counters maintained by the reporting consumer.
	KeyKPIOrders       = "kpi:orders"
	KeyKPIItems        = "kpi:items"
	KeyKPIRevenuePaise = "kpi:revenue_paise" // minor units, so INCRBY stays atomic
)

var (
	TTLDedup     = 48 * time.Hour
	TTLReadCache = 60 * time.Second
)
