package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Queue metrics
	CallsEnqueuedTotal  int64
	CallsAssignedTotal  int64
	CallsCompletedTotal int64
	CallsCancelledTotal int64
	EscalationsTotal    int64

	// Assignment metrics
	AssignmentAttemptsTotal int64
	AssignmentErrorsTotal   int64

	// Sweep metrics
	SweepPassesTotal  int64
	lastSweepAssigned int64

	// Gateway metrics
	AgentConnectionsTotal    int64
	AgentDisconnectionsTotal int64
	HeartbeatsTotal          int64
	activeConnections        int64

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordEnqueue increments the enqueued calls counter
func (m *Metrics) RecordEnqueue() {
	m.mu.Lock()
	m.CallsEnqueuedTotal++
	m.mu.Unlock()
}

// RecordAssignment increments the assigned calls counter
func (m *Metrics) RecordAssignment() {
	m.mu.Lock()
	m.CallsAssignedTotal++
	m.mu.Unlock()
}

// RecordAssignmentAttempt increments the assignment attempts counter
func (m *Metrics) RecordAssignmentAttempt() {
	m.mu.Lock()
	m.AssignmentAttemptsTotal++
	m.mu.Unlock()
}

// RecordAssignmentError increments the assignment error counter
func (m *Metrics) RecordAssignmentError() {
	m.mu.Lock()
	m.AssignmentErrorsTotal++
	m.mu.Unlock()
}

// RecordCompletion increments the completed calls counter
func (m *Metrics) RecordCompletion() {
	m.mu.Lock()
	m.CallsCompletedTotal++
	m.mu.Unlock()
}

// RecordCancellation increments the cancelled calls counter
func (m *Metrics) RecordCancellation() {
	m.mu.Lock()
	m.CallsCancelledTotal++
	m.mu.Unlock()
}

// RecordSweep records one sweep pass and its results
func (m *Metrics) RecordSweep(escalated, assigned int) {
	m.mu.Lock()
	m.SweepPassesTotal++
	m.EscalationsTotal += int64(escalated)
	m.lastSweepAssigned = int64(assigned)
	m.mu.Unlock()
}

// RecordAgentConnect increments connection counters
func (m *Metrics) RecordAgentConnect() {
	m.mu.Lock()
	m.AgentConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordAgentDisconnect increments disconnection counter
func (m *Metrics) RecordAgentDisconnect() {
	m.mu.Lock()
	m.AgentDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordHeartbeat increments the heartbeat counter
func (m *Metrics) RecordHeartbeat() {
	m.mu.Lock()
	m.HeartbeatsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("verifyid_uptime_seconds", time.Since(m.startTime).Seconds())

		// Queue metrics
		write("verifyid_calls_enqueued_total", m.CallsEnqueuedTotal)
		write("verifyid_calls_assigned_total", m.CallsAssignedTotal)
		write("verifyid_calls_completed_total", m.CallsCompletedTotal)
		write("verifyid_calls_cancelled_total", m.CallsCancelledTotal)
		write("verifyid_escalations_total", m.EscalationsTotal)

		// Assignment metrics
		write("verifyid_assignment_attempts_total", m.AssignmentAttemptsTotal)
		write("verifyid_assignment_errors_total", m.AssignmentErrorsTotal)

		// Sweep metrics
		write("verifyid_sweep_passes_total", m.SweepPassesTotal)
		write("verifyid_sweep_last_assigned", m.lastSweepAssigned)

		// Gateway metrics
		write("verifyid_agent_connections_total", m.AgentConnectionsTotal)
		write("verifyid_agent_disconnections_total", m.AgentDisconnectionsTotal)
		write("verifyid_agent_active_connections", m.activeConnections)
		write("verifyid_heartbeats_total", m.HeartbeatsTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("verifyid_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
