package health

import "time"

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
