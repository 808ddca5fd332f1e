package assignment

import (
	"errors"
	"testing"

	"github.com/rpaflow/fleetcore/pkg/models"
)

type fakeAffinity struct {
	holders map[string]string // workflowID -> robotID
}

func (f *fakeAffinity) HasValidState(workflowID, robotID string) bool {
	return f.holders[workflowID] == robotID
}

func testRobot(id string, cpu float64) *models.RobotInfo {
	return &models.RobotInfo{
		ID:                id,
		Status:            models.RobotStatusAvailable,
		CPUPercent:        cpu,
		MemoryPercent:     20,
		CurrentJobs:       0,
		MaxConcurrentJobs: 5,
	}
}

func TestAssignPicksLowestLoad(t *testing.T) {
	engine := NewEngine()
	robots := []*models.RobotInfo{
		testRobot("robot-hot", 90),
		testRobot("robot-cool", 10),
	}

	result, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1"}, robots, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "robot-cool" {
		t.Errorf("Expected robot-cool, got %s", result.RobotID)
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].RobotID != "robot-hot" {
		t.Errorf("Expected robot-hot as alternative, got %+v", result.Alternatives)
	}
}

func TestAssignDeterministic(t *testing.T) {
	engine := NewEngine()
	robots := []*models.RobotInfo{
		testRobot("a", 30),
		testRobot("b", 30),
		testRobot("c", 30),
	}
	req := &models.JobRequirements{WorkflowID: "wf-1"}

	first, err := engine.Assign(req, robots, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := engine.Assign(req, robots, "")
		if err != nil {
			t.Fatalf("Assign failed on repeat %d: %v", i, err)
		}
		if again.RobotID != first.RobotID {
			t.Fatalf("Non-deterministic result: %s then %s", first.RobotID, again.RobotID)
		}
		if again.Score != first.Score {
			t.Fatalf("Score changed between identical calls: %f then %f", first.Score, again.Score)
		}
	}
	// Ties break by input order.
	if first.RobotID != "a" {
		t.Errorf("Expected tie to break to first robot, got %s", first.RobotID)
	}
}

func TestBreakdownSumsToScore(t *testing.T) {
	engine := NewEngine()
	robots := []*models.RobotInfo{
		{
			ID:                "r1",
			Status:            models.RobotStatusAvailable,
			CPUPercent:        70,
			MemoryPercent:     85,
			CurrentJobs:       3,
			MaxConcurrentJobs: 5,
			Tags:              []string{"finance"},
			NetworkZone:       "eu-1",
		},
	}
	req := &models.JobRequirements{
		WorkflowID:   "wf-1",
		RequiredTags: []string{"finance"},
	}

	result, err := engine.Assign(req, robots, "eu-1")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	sum := 0.0
	for _, v := range result.Breakdown {
		sum += v
	}
	if sum != result.Score {
		t.Errorf("Breakdown sum %f != score %f", sum, result.Score)
	}
}

func TestHardFilterUnavailableRobots(t *testing.T) {
	engine := NewEngine()
	offline := testRobot("offline", 10)
	offline.Status = models.RobotStatusOffline
	full := testRobot("full", 10)
	full.CurrentJobs = 5

	_, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1"},
		[]*models.RobotInfo{offline, full}, "")
	var noRobot *models.NoCapableRobotError
	if !errors.As(err, &noRobot) {
		t.Fatalf("Expected NoCapableRobotError, got %v", err)
	}
	if noRobot.WorkflowID != "wf-1" {
		t.Errorf("Expected workflow wf-1 in error, got %s", noRobot.WorkflowID)
	}
}

func TestMissingCapabilityNeverSelected(t *testing.T) {
	engine := NewEngine()
	capable := testRobot("capable", 95) // heavily loaded but capable
	capable.Capabilities = map[string]models.Capability{
		"sap": {Type: models.CapabilityTypeApplication, Name: "sap", Version: "7.5"},
	}
	incapable := testRobot("incapable", 5) // idle but lacks the capability

	req := &models.JobRequirements{
		WorkflowID: "wf-1",
		RequiredCapabilities: []models.CapabilityRequirement{
			{Type: models.CapabilityTypeApplication, Name: "sap"},
		},
	}

	result, err := engine.Assign(req, []*models.RobotInfo{capable, incapable}, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "capable" {
		t.Errorf("Expected capable robot, got %s", result.RobotID)
	}
	for _, alt := range result.Alternatives {
		if alt.RobotID == "incapable" {
			t.Error("Robot missing a required capability appeared in alternatives")
		}
	}
}

func TestNoCapableRobotErrorCarriesMissing(t *testing.T) {
	engine := NewEngine()
	robot := testRobot("r1", 10)

	req := &models.JobRequirements{
		WorkflowID: "wf-1",
		RequiredCapabilities: []models.CapabilityRequirement{
			{Type: models.CapabilityTypeApplication, Name: "sap"},
			{Type: models.CapabilityTypeFeature, Name: "ocr"},
		},
	}

	_, err := engine.Assign(req, []*models.RobotInfo{robot}, "")
	var noRobot *models.NoCapableRobotError
	if !errors.As(err, &noRobot) {
		t.Fatalf("Expected NoCapableRobotError, got %v", err)
	}
	if len(noRobot.MissingCapabilities) != 2 {
		t.Fatalf("Expected 2 missing capabilities, got %v", noRobot.MissingCapabilities)
	}
	if noRobot.MissingCapabilities[0] != "sap" || noRobot.MissingCapabilities[1] != "ocr" {
		t.Errorf("Expected missing capabilities in requirement order, got %v", noRobot.MissingCapabilities)
	}
}

func TestScoreMonotonicAcrossThreshold(t *testing.T) {
	engine := NewEngine()
	below := testRobot("below", 79) // under the high threshold
	above := testRobot("above", 81) // over it

	result, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1"},
		[]*models.RobotInfo{above, below}, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "below" {
		t.Errorf("Robot below the threshold should score higher, got %s", result.RobotID)
	}
	if result.Alternatives[0].Score >= result.Score {
		t.Errorf("Crossing the high threshold must strictly decrease the score: %f vs %f",
			result.Alternatives[0].Score, result.Score)
	}
}

func TestStateAffinityBonusWins(t *testing.T) {
	// Robot A is busy (cpu 90) but holds state for W1; robot B is idle.
	// With requires_state the +100 affinity bonus must outweigh A's -50
	// load penalty; without it B wins.
	checker := &fakeAffinity{holders: map[string]string{"W1": "robot-a"}}
	engine := NewEngine(WithAffinityChecker(checker))

	robots := []*models.RobotInfo{
		testRobot("robot-a", 90),
		testRobot("robot-b", 10),
	}

	withState, err := engine.Assign(&models.JobRequirements{WorkflowID: "W1", RequiresState: true}, robots, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if withState.RobotID != "robot-a" {
		t.Errorf("State holder should win under requires_state, got %s", withState.RobotID)
	}

	without, err := engine.Assign(&models.JobRequirements{WorkflowID: "W1"}, robots, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if without.RobotID != "robot-b" {
		t.Errorf("Idle robot should win without requires_state, got %s", without.RobotID)
	}
}

func TestZoneProximityBonus(t *testing.T) {
	engine := NewEngine()
	local := testRobot("local", 30)
	local.NetworkZone = "eu-1"
	remote := testRobot("remote", 30)
	remote.NetworkZone = "us-1"

	result, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1"},
		[]*models.RobotInfo{remote, local}, "eu-1")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "local" {
		t.Errorf("Zone-local robot should win, got %s", result.RobotID)
	}
}

func TestEnvironmentGate(t *testing.T) {
	engine := NewEngine()
	prod := testRobot("prod", 10)
	prod.Environment = "production"
	staging := testRobot("staging", 10)
	staging.Environment = "staging"

	result, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1", Environment: "staging"},
		[]*models.RobotInfo{prod, staging}, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "staging" {
		t.Errorf("Expected staging robot, got %s", result.RobotID)
	}
	if len(result.Alternatives) != 0 {
		t.Errorf("Environment-mismatched robot should be filtered, got alternatives %+v", result.Alternatives)
	}

	// Empty and "default" environments skip the gate entirely.
	if _, err := engine.Assign(&models.JobRequirements{WorkflowID: "wf-1", Environment: "default"},
		[]*models.RobotInfo{prod, staging}, ""); err != nil {
		t.Errorf("default environment should not gate: %v", err)
	}
}

func TestWeightsScaleFactors(t *testing.T) {
	weights := DefaultScoringWeights()
	weights.CPULoad = 0 // ignore CPU load entirely
	engine := NewEngine(WithWeights(weights))

	hot := testRobot("hot", 95)
	hot.Tags = []string{"finance"}
	cool := testRobot("cool", 5)

	result, err := engine.Assign(&models.JobRequirements{
		WorkflowID:   "wf-1",
		RequiredTags: []string{"finance"},
	}, []*models.RobotInfo{hot, cool}, "")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if result.RobotID != "hot" {
		t.Errorf("With CPU weight zeroed the tag match should win, got %s", result.RobotID)
	}
}
