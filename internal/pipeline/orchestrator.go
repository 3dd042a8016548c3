package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jfellner/veritest-go/internal/models"
	"github.com/jfellner/veritest-go/internal/progress"
)

// RequirementTrace maps one requirement to the test cases generated for it.
type RequirementTrace struct {
	RequirementID       string   `json:"requirement_id"`
	RequirementTitle    string   `json:"requirement_title"`
	Priority            string   `json:"priority"`
	RiskClass           string   `json:"risk_class"`
	IECClass            string   `json:"iec_class"`
	TestCases           []string `json:"test_cases"`
	TestCoverage        int      `json:"test_coverage"`
	ComplianceStandards []string `json:"compliance_standards"`
}

// Results is the generation output saved to the results file.
type Results struct {
	Requirements []models.Requirement `json:"requirements"`
	TestCases    []models.TestCase    `json:"test_cases"`
	Traceability []RequirementTrace   `json:"traceability_matrix"`
	Summary      Summary              `json:"summary"`
}

// Summary aggregates generation counts.
type Summary struct {
	TotalRequirements int     `json:"total_requirements"`
	TotalTestCases    int     `json:"total_test_cases"`
	CoverageRatio     float64 `json:"coverage_ratio"`
}

// Orchestrator runs document text through parsing and generation and saves
// the results file. Export is triggered separately by user action.
type Orchestrator struct {
	generator   *Generator
	broadcaster *progress.Broadcaster
	resultsPath string
}

// NewOrchestrator creates the generation orchestrator.
func NewOrchestrator(generator *Generator, broadcaster *progress.Broadcaster, resultsPath string) *Orchestrator {
	return &Orchestrator{
		generator:   generator,
		broadcaster: broadcaster,
		resultsPath: resultsPath,
	}
}

// ProcessDocument parses requirements from the document, generates test cases
// per requirement, and writes the results file. Progress is broadcast per
// phase; a failure in any phase aborts the run.
func (o *Orchestrator) ProcessDocument(ctx context.Context, documentText string) (*Results, error) {
	o.publish(models.ProgressGenerating, "parsing requirements")

	requirements, err := o.generator.ParseRequirements(ctx, documentText)
	if err != nil {
		o.publish(models.ProgressPipelineFailed, err.Error())
		return nil, err
	}
	slog.Info("requirements parsed", "count", len(requirements))

	var allCases []models.TestCase
	for _, req := range requirements {
		o.publish(models.ProgressGenerating, fmt.Sprintf("generating test cases for %s", req.RequirementID))

		// The retrieval index is an external collaborator; the standards on
		// the requirement stand in as grounding context here.
		complianceContext := strings.Join(req.ComplianceStandards, ", ")
		cases, err := o.generator.GenerateTestCases(ctx, req, complianceContext)
		if err != nil {
			o.publish(models.ProgressPipelineFailed, err.Error())
			return nil, err
		}
		allCases = append(allCases, cases...)
	}

	results := &Results{
		Requirements: requirements,
		TestCases:    allCases,
		Traceability: buildRequirementTraces(requirements, allCases),
		Summary: Summary{
			TotalRequirements: len(requirements),
			TotalTestCases:    len(allCases),
		},
	}
	if len(requirements) > 0 {
		results.Summary.CoverageRatio = float64(len(allCases)) / float64(len(requirements))
	}

	if err := o.saveResults(results); err != nil {
		// The caller still gets the results; only persistence failed.
		slog.Warn("failed to save results file", "path", o.resultsPath, "error", err)
	}

	o.broadcaster.Publish(models.ProgressEvent{
		Status:  models.ProgressResultsReady,
		Message: fmt.Sprintf("%d test cases generated from %d requirements", len(allCases), len(requirements)),
		Payload: results.Summary,
	})
	return results, nil
}

func buildRequirementTraces(requirements []models.Requirement, cases []models.TestCase) []RequirementTrace {
	traces := make([]RequirementTrace, 0, len(requirements))
	for _, req := range requirements {
		trace := RequirementTrace{
			RequirementID:       req.RequirementID,
			RequirementTitle:    req.Title,
			Priority:            req.Priority,
			RiskClass:           req.RiskClass,
			IECClass:            req.IECClass,
			ComplianceStandards: req.ComplianceStandards,
		}
		for _, tc := range cases {
			if tc.RequirementID == req.RequirementID {
				trace.TestCases = append(trace.TestCases, tc.TestCaseID)
			}
		}
		trace.TestCoverage = len(trace.TestCases)
		traces = append(traces, trace)
	}
	return traces
}

func (o *Orchestrator) saveResults(results *Results) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(o.resultsPath, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func (o *Orchestrator) publish(status, msg string) {
	o.broadcaster.Publish(models.ProgressEvent{Status: status, Message: msg})
}
