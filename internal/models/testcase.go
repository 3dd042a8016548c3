// Package models defines data structures for the veritest export pipeline.
package models

import (
	"fmt"
	"strings"
)

// TestStep is one action/expectation pair inside a test case.
type TestStep struct {
	Step           int    `json:"step"`
	Action         string `json:"action"`
	ExpectedResult string `json:"expected_result"`
}

// TestCase is one generated healthcare compliance test case. Immutable once
// submitted for export.
type TestCase struct {
	TestCaseID           string     `json:"test_case_id"`
	RequirementID        string     `json:"requirement_id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	TestType             string     `json:"test_type"` // Positive, Negative, Boundary, Performance
	Priority             string     `json:"priority"`
	Steps                []TestStep `json:"steps"`
	ExpectedResults      string     `json:"expected_results"`
	ComplianceValidation string     `json:"compliance_validation"`
	RegulatoryCitations  []string   `json:"regulatory_citations"`
	RiskCategory         string     `json:"risk_category"` // Safety, Security, Performance, Usability
	AutomationFeasible   bool       `json:"automation_feasible"`
	ComplianceStandards  []string   `json:"compliance_standards,omitempty"`
}

// Validate checks the fields an export cannot proceed without.
// Optional fields (citations, standards, automation flag) are not enforced.
func (tc TestCase) Validate() error {
	var missing []string
	if tc.TestCaseID == "" {
		missing = append(missing, "test_case_id")
	}
	if tc.Title == "" {
		missing = append(missing, "title")
	}
	if tc.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("test case missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateTestCases validates a full submission, reporting the first invalid
// entry by position.
func ValidateTestCases(cases []TestCase) error {
	if len(cases) == 0 {
		return fmt.Errorf("no test cases submitted")
	}
	for i, tc := range cases {
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("test case %d: %w", i, err)
		}
	}
	return nil
}

// Requirement is a parsed healthcare requirement that test cases trace back to.
type Requirement struct {
	RequirementID       string   `json:"requirement_id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Priority            string   `json:"priority"`
	AcceptanceCriteria  []string `json:"acceptance_criteria"`
	RiskClass           string   `json:"risk_class"`
	IECClass            string   `json:"iec_class"`
	TraceabilityLinks   []string `json:"traceability_links"`
	ComplianceStandards []string `json:"compliance_standards"`
}
