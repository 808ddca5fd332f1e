package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rpaflow/fleetcore/pkg/affinity"
	"github.com/rpaflow/fleetcore/pkg/assignment"
	"github.com/rpaflow/fleetcore/pkg/auth"
	"github.com/rpaflow/fleetcore/pkg/models"
	"github.com/rpaflow/fleetcore/pkg/scheduler"
)

// FleetHandler handles the orchestrator API: robot presence, job
// assignment and schedule introspection.
type FleetHandler struct {
	registry  *RobotRegistry
	engine    *assignment.Engine
	affinity  *affinity.Manager
	scheduler *scheduler.Scheduler
	tokens    *auth.TokenManager
	zone      string
}

// NewFleetHandler creates a handler over the orchestrator core.
func NewFleetHandler(registry *RobotRegistry, engine *assignment.Engine, mgr *affinity.Manager, sched *scheduler.Scheduler, tokens *auth.TokenManager, zone string) *FleetHandler {
	return &FleetHandler{
		registry:  registry,
		engine:    engine,
		affinity:  mgr,
		scheduler: sched,
		tokens:    tokens,
		zone:      zone,
	}
}

// RegisterRoutes registers all API routes
func (h *FleetHandler) RegisterRoutes(r *mux.Router) {
	// Robot routes
	r.HandleFunc("/robots/register", h.RegisterRobot).Methods("POST")
	r.HandleFunc("/robots", h.ListRobots).Methods("GET")
	r.HandleFunc("/robots/{id}", h.GetRobot).Methods("GET")
	r.HandleFunc("/robots/{id}", h.RemoveRobot).Methods("DELETE")
	r.HandleFunc("/robots/{id}/heartbeat", h.RobotHeartbeat).Methods("POST")

	// Assignment
	r.HandleFunc("/assign", h.AssignJob).Methods("POST")

	// Schedule routes (specific routes before parameterized ones)
	r.HandleFunc("/schedules/upcoming", h.UpcomingRuns).Methods("GET")
	r.HandleFunc("/schedules/sla", h.SLAReport).Methods("GET")
	r.HandleFunc("/schedules/dependencies", h.DependencyGraph).Methods("GET")
	r.HandleFunc("/schedules", h.CreateSchedule).Methods("POST")
	r.HandleFunc("/schedules", h.ListSchedules).Methods("GET")
	r.HandleFunc("/schedules/{id}", h.GetSchedule).Methods("GET")
	r.HandleFunc("/schedules/{id}", h.RemoveSchedule).Methods("DELETE")
	r.HandleFunc("/schedules/{id}/pause", h.PauseSchedule).Methods("POST")
	r.HandleFunc("/schedules/{id}/resume", h.ResumeSchedule).Methods("POST")
	r.HandleFunc("/schedules/{id}/complete", h.NotifyCompletion).Methods("POST")

	// Events
	r.HandleFunc("/events/{name}", h.TriggerEvent).Methods("POST")

	// Affinity state introspection
	r.HandleFunc("/workflows/{id}/session", h.GetSession).Methods("GET")
	r.HandleFunc("/workflows/{id}/session", h.EndSession).Methods("DELETE")

	r.HandleFunc("/health", h.Health).Methods("GET")
}

// RegisterRobotRequest is the robot registration payload.
type RegisterRobotRequest struct {
	Robot         models.RobotInfo `json:"robot"`
	TokenDuration string           `json:"token_duration,omitempty"`
}

// RegisterRobot registers a robot and issues its heartbeat token.
func (h *FleetHandler) RegisterRobot(w http.ResponseWriter, r *http.Request) {
	var req RegisterRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Robot.ID == "" {
		http.Error(w, "Robot id is required", http.StatusBadRequest)
		return
	}

	duration := 24 * time.Hour
	if req.TokenDuration != "" {
		d, err := time.ParseDuration(req.TokenDuration)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token_duration: %v", err), http.StatusBadRequest)
			return
		}
		duration = d
	}

	token, err := h.tokens.GenerateToken(req.Robot.ID, duration)
	if err != nil {
		log.Printf("[API] Failed to issue token for %s: %v", req.Robot.ID, err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	h.registry.Update(&req.Robot)
	log.Printf("[API] Registered robot %s (env=%s, zone=%s)", req.Robot.ID, req.Robot.Environment, req.Robot.NetworkZone)

	writeJSON(w, http.StatusCreated, map[string]string{
		"robot_id": req.Robot.ID,
		"token":    token,
	})
}

// RobotHeartbeat accepts a fresh RobotInfo snapshot.
func (h *FleetHandler) RobotHeartbeat(w http.ResponseWriter, r *http.Request) {
	robotID := mux.Vars(r)["id"]

	token := r.Header.Get("X-Robot-Token")
	if err := h.tokens.ValidateToken(robotID, token); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var info models.RobotInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	info.ID = robotID
	h.registry.Update(&info)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRobots returns all known robots.
func (h *FleetHandler) ListRobots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

// GetRobot returns one robot.
func (h *FleetHandler) GetRobot(w http.ResponseWriter, r *http.Request) {
	info, ok := h.registry.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Robot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// RemoveRobot deregisters a robot.
func (h *FleetHandler) RemoveRobot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.registry.Remove(id) {
		http.Error(w, "Robot not found", http.StatusNotFound)
		return
	}
	h.tokens.RevokeToken(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// AssignRequest is the assignment payload.
type AssignRequest struct {
	Requirements models.JobRequirements `json:"requirements"`
	JobID        string                 `json:"job_id,omitempty"`
	Affinity     models.AffinityLevel   `json:"affinity,omitempty"`
}

// AssignJob runs the two-phase assignment over the current registry
// snapshot. With an affinity level set, the affinity manager decides
// first and the engine scores within its constraints.
func (h *FleetHandler) AssignJob(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Requirements.WorkflowID == "" {
		http.Error(w, "workflow_id is required", http.StatusBadRequest)
		return
	}

	robots := h.registry.Snapshot()

	if req.Affinity != "" && req.Affinity != models.AffinityNone {
		decision, err := h.affinity.SelectRobot(req.Requirements.WorkflowID, req.Affinity, robots, req.JobID, nil)
		if err != nil {
			var sessionErr *models.SessionAffinityError
			if errors.As(err, &sessionErr) {
				writeJSON(w, http.StatusConflict, map[string]interface{}{
					"error":       sessionErr.Error(),
					"workflow_id": sessionErr.WorkflowID,
					"robot_id":    sessionErr.RobotID,
				})
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, decision)
		return
	}

	result, err := h.engine.Assign(&req.Requirements, robots, h.zone)
	if err != nil {
		var noRobot *models.NoCapableRobotError
		if errors.As(err, &noRobot) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":                noRobot.Error(),
				"workflow_id":          noRobot.WorkflowID,
				"missing_capabilities": noRobot.MissingCapabilities,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateSchedule adds a schedule.
func (h *FleetHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.AddSchedule(&sched); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, &sched)
}

// ListSchedules returns all schedules.
func (h *FleetHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.List())
}

// GetSchedule returns one schedule.
func (h *FleetHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.scheduler.GetSchedule(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// RemoveSchedule deletes a schedule.
func (h *FleetHandler) RemoveSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RemoveSchedule(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// PauseSchedule pauses a schedule.
func (h *FleetHandler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.PauseSchedule(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeSchedule resumes a schedule.
func (h *FleetHandler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.ResumeSchedule(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// CompletionRequest reports an external execution outcome.
type CompletionRequest struct {
	Success bool `json:"success"`
}

// NotifyCompletion feeds the dependency graph from external job
// completion reports.
func (h *FleetHandler) NotifyCompletion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.scheduler.NotifyCompletion(id, req.Success)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// TriggerEvent fires event-driven schedules.
func (h *FleetHandler) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var payload map[string]interface{}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&payload) // optional payload
	}
	fired := h.scheduler.TriggerEvent(name, payload)
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": name, "fired": fired})
}

// UpcomingRuns projects future firings. Query params: within (duration,
// default 24h), limit (default 50) and workflow_id (optional filter).
func (h *FleetHandler) UpcomingRuns(w http.ResponseWriter, r *http.Request) {
	within := 24 * time.Hour
	if v := r.URL.Query().Get("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid within: %v", err), http.StatusBadRequest)
			return
		}
		within = d
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	workflowID := r.URL.Query().Get("workflow_id")
	writeJSON(w, http.StatusOK, h.scheduler.GetUpcomingRuns(within, limit, workflowID))
}

// SLAReport returns per-schedule compliance. Query params: schedule_id
// (optional, restricts the report to one schedule) and window_hours
// (optional rolling-window override).
func (h *FleetHandler) SLAReport(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if v := r.URL.Query().Get("window_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			http.Error(w, "Invalid window_hours", http.StatusBadRequest)
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	scheduleID := r.URL.Query().Get("schedule_id")
	if scheduleID != "" {
		if _, ok := h.scheduler.GetSchedule(scheduleID); !ok {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
	}

	report, err := h.scheduler.GetSLAReport(scheduleID, window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DependencyGraph returns the depends-on adjacency map of registered
// dependency schedules.
func (h *FleetHandler) DependencyGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetDependencyGraph())
}

// GetSession returns a workflow's active session.
func (h *FleetHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.affinity.Session(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// EndSession ends a workflow's session.
func (h *FleetHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if !h.affinity.EndSession(mux.Vars(r)["id"]) {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// Health is the liveness endpoint.
func (h *FleetHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"robots":    len(h.registry.Snapshot()),
		"schedules": len(h.scheduler.List()),
		"running":   h.scheduler.IsRunning(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}
