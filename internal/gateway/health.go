package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

const serviceName = "api-gateway"

type healthBody struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func writeHealth(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthBody{
		Status:    status,
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Health reports overall process health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, "UP")
}

// Ready reports readiness to accept traffic.
func Ready(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, "READY")
}

// Live reports process liveness.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, "LIVE")
}
