package health

import (
	"context"
	"net/http"
	"time"

	"github.com/hilthontt/quadchat/internal/infrastructure/json"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	checks map[string]Check
}

func NewHandler(checks map[string]Check) *Handler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &Handler{checks: checks}
}

// GetLive only reports that the process serves requests.
func (h *Handler) GetLive(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC(),
	})
}

// GetHealth runs every dependency check and answers 503 if one fails.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	data := healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			data.Status = statusDegraded
			data.Checks[name] = err.Error()
			continue
		}
		data.Checks[name] = statusOK
	}

	status := http.StatusOK
	if data.Status != statusOK {
		status = http.StatusServiceUnavailable
	}
	json.Write(w, status, data)
}
