package assignment

import (
	"log"
	"sort"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// Score breakdown keys. The values stored under these keys always sum
// to the reported total.
const (
	FactorBase             = "base"
	FactorCPULoad          = "cpu_load"
	FactorMemoryLoad       = "memory_load"
	FactorJobCount         = "job_count"
	FactorTagMatch         = "tag_match"
	FactorStateAffinity    = "state_affinity"
	FactorNetworkProximity = "network_proximity"
)

const (
	baseScore          = 100.0
	maxAlternatives    = 4
	requiredTagBonus   = 20.0
	preferredTagBonus  = 10.0
	stateAffinityBonus = 100.0
	zoneMatchBonus     = 15.0
)

// ScoringWeights multiplies each soft-scoring adjustment before it is
// summed into the robot's total.
type ScoringWeights struct {
	CPULoad          float64 `json:"cpu_load"`
	MemoryLoad       float64 `json:"memory_load"`
	JobCount         float64 `json:"job_count"`
	TagMatch         float64 `json:"tag_match"`
	StateAffinity    float64 `json:"state_affinity"`
	NetworkProximity float64 `json:"network_proximity"`
}

// DefaultScoringWeights returns neutral weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		CPULoad:          1.0,
		MemoryLoad:       1.0,
		JobCount:         1.0,
		TagMatch:         1.0,
		StateAffinity:    1.0,
		NetworkProximity: 1.0,
	}
}

// LoadThresholds holds the CPU/memory penalty cut-offs in percent.
type LoadThresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// DefaultLoadThresholds returns the standard 80/60 cut-offs.
func DefaultLoadThresholds() LoadThresholds {
	return LoadThresholds{High: 80, Medium: 60}
}

// AffinityChecker is the caller-supplied affinity signal consulted when
// a job declares RequiresState.
type AffinityChecker interface {
	HasValidState(workflowID, robotID string) bool
}

// Engine ranks constraint-satisfying robots by a weighted soft score.
// It is pure computation over the supplied snapshot: no suspension, no
// caching, safe for concurrent use.
type Engine struct {
	weights    ScoringWeights
	thresholds LoadThresholds
	affinity   AffinityChecker
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the default scoring weights.
func WithWeights(w ScoringWeights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithThresholds overrides the default load thresholds.
func WithThresholds(t LoadThresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithAffinityChecker wires the state-affinity signal.
func WithAffinityChecker(c AffinityChecker) Option {
	return func(e *Engine) { e.affinity = c }
}

// NewEngine creates an assignment engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:    DefaultScoringWeights(),
		thresholds: DefaultLoadThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type scoredRobot struct {
	robot     *models.RobotInfo
	score     float64
	breakdown map[string]float64
}

// Assign picks the best robot for the job, or returns
// *models.NoCapableRobotError when zero robots survive hard filtering.
// Given identical inputs the result is deterministic; ties break by
// input order.
func (e *Engine) Assign(req *models.JobRequirements, robots []*models.RobotInfo, orchestratorZone string) (*models.AssignmentResult, error) {
	start := time.Now()

	survivors, missing := e.hardFilter(req, robots)
	if len(survivors) == 0 {
		return nil, &models.NoCapableRobotError{
			WorkflowID:          req.WorkflowID,
			MissingCapabilities: missing,
		}
	}

	scored := make([]scoredRobot, 0, len(survivors))
	for _, robot := range survivors {
		score, breakdown := e.scoreRobot(req, robot, orchestratorZone)
		scored = append(scored, scoredRobot{robot: robot, score: score, breakdown: breakdown})
	}

	// Stable sort keeps input order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	best := scored[0]
	result := &models.AssignmentResult{
		RobotID:      best.robot.ID,
		Score:        best.score,
		Breakdown:    best.breakdown,
		DecisionTime: time.Since(start),
	}
	for _, alt := range scored[1:] {
		if len(result.Alternatives) >= maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, models.AlternativeRobot{
			RobotID: alt.robot.ID,
			Score:   alt.score,
		})
	}

	log.Printf("[Assignment] Workflow %s assigned to robot %s (score=%.1f, candidates=%d, took=%v)",
		req.WorkflowID, best.robot.ID, best.score, len(scored), result.DecisionTime)

	return result, nil
}

// hardFilter drops robots failing any hard constraint and collects the
// unmet capability names seen along the way.
func (e *Engine) hardFilter(req *models.JobRequirements, robots []*models.RobotInfo) ([]*models.RobotInfo, []string) {
	survivors := make([]*models.RobotInfo, 0, len(robots))
	missingSet := make(map[string]bool)

	for _, robot := range robots {
		ok, reason := CanRobotSatisfyJob(robot, req)
		if ok {
			survivors = append(survivors, robot)
			continue
		}
		log.Printf("[Assignment] Robot %s filtered for workflow %s: %s", robot.ID, req.WorkflowID, reason)
		for _, rc := range req.RequiredCapabilities {
			if _, has := lookupCapability(robot, rc); !has {
				missingSet[rc.Name] = true
			}
		}
	}

	missing := make([]string, 0, len(missingSet))
	for _, rc := range req.RequiredCapabilities {
		if missingSet[rc.Name] {
			missing = append(missing, rc.Name)
			missingSet[rc.Name] = false
		}
	}
	return survivors, missing
}

// scoreRobot computes the weighted soft score and its per-factor
// breakdown for one constraint-satisfying robot.
func (e *Engine) scoreRobot(req *models.JobRequirements, robot *models.RobotInfo, orchestratorZone string) (float64, map[string]float64) {
	breakdown := map[string]float64{
		FactorBase: baseScore,
	}

	breakdown[FactorCPULoad] = loadPenalty(robot.CPUPercent, e.thresholds) * e.weights.CPULoad
	breakdown[FactorMemoryLoad] = loadPenalty(robot.MemoryPercent, e.thresholds) * e.weights.MemoryLoad
	breakdown[FactorJobCount] = jobCountPenalty(robot) * e.weights.JobCount

	tagScore := 0.0
	for _, tag := range req.RequiredTags {
		if robot.HasTag(tag) {
			tagScore += requiredTagBonus
		}
	}
	for _, tag := range req.PreferredTags {
		if robot.HasTag(tag) {
			tagScore += preferredTagBonus
		}
	}
	breakdown[FactorTagMatch] = tagScore * e.weights.TagMatch

	affinityScore := 0.0
	if req.RequiresState && e.affinity != nil && e.affinity.HasValidState(req.WorkflowID, robot.ID) {
		affinityScore = stateAffinityBonus
	}
	breakdown[FactorStateAffinity] = affinityScore * e.weights.StateAffinity

	zoneScore := 0.0
	if orchestratorZone != "" && robot.NetworkZone == orchestratorZone {
		zoneScore = zoneMatchBonus
	}
	breakdown[FactorNetworkProximity] = zoneScore * e.weights.NetworkProximity

	// Sum in a fixed order so float rounding cannot vary between calls.
	total := breakdown[FactorBase] +
		breakdown[FactorCPULoad] +
		breakdown[FactorMemoryLoad] +
		breakdown[FactorJobCount] +
		breakdown[FactorTagMatch] +
		breakdown[FactorStateAffinity] +
		breakdown[FactorNetworkProximity]
	return total, breakdown
}

// loadPenalty returns the signed CPU/memory adjustment for a load
// percentage: -50 above the high threshold, -25 above medium, else 0.
func loadPenalty(percent float64, t LoadThresholds) float64 {
	switch {
	case percent > t.High:
		return -50
	case percent > t.Medium:
		return -25
	default:
		return 0
	}
}

// jobCountPenalty penalizes slot utilization: -50 above 80%, -25 above
// 50%, otherwise proportional to utilization.
func jobCountPenalty(robot *models.RobotInfo) float64 {
	util := robot.Utilization()
	switch {
	case util > 0.8:
		return -50
	case util > 0.5:
		return -25
	default:
		return -(util * 10)
	}
}
