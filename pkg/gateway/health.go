package gateway

import (
	"net/http"

	"github.com/benthamhq/bentham/pkg/types"
)

// healthReport is the liveness payload. Check values are "ok",
// "error", or "disabled".
type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status: "ok",
		Checks: map[string]string{
			"database":     "ok",
			"redis":        "disabled",
			"orchestrator": "ok",
		},
	}

	if _, err := s.store.ListStudiesByStatus(types.StudyStatusExecuting); err != nil {
		report.Checks["database"] = "error"
	}
	if s.redis != nil {
		report.Checks["redis"] = "ok"
		if err := s.redis.Ping(r.Context()); err != nil {
			report.Checks["redis"] = "error"
		}
	}
	if s.orch == nil {
		report.Checks["orchestrator"] = "error"
	}

	status := http.StatusOK
	for _, check := range report.Checks {
		if check == "error" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}

	respondData(w, status, report)
}
