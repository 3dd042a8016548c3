package tracker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldMap maps veritest test case attributes onto Jira custom field IDs.
// Defaults match the field scheme of the reference Jira project; deployments
// against a differently provisioned project override them via YAML.
type FieldMap struct {
	RequirementLink     string `yaml:"requirement_link"`
	TestCaseID          string `yaml:"test_case_id"`
	TestSteps           string `yaml:"test_steps"`
	ExpectedResults     string `yaml:"expected_results"`
	ComplianceStandards string `yaml:"compliance_standards"`
	RiskCategory        string `yaml:"risk_category"`
	RegulatoryCitations string `yaml:"regulatory_citations"`
}

// DefaultFieldMap returns the reference project's custom field IDs.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		RequirementLink:     "customfield_10001",
		TestCaseID:          "customfield_10002",
		TestSteps:           "customfield_10003",
		ExpectedResults:     "customfield_10004",
		ComplianceStandards: "customfield_10005",
		RiskCategory:        "customfield_10006",
		RegulatoryCitations: "customfield_10007",
	}
}

// LoadFieldMap reads a YAML field mapping, filling unset fields from the
// defaults. An empty path returns the defaults unchanged.
func LoadFieldMap(path string) (FieldMap, error) {
	fm := DefaultFieldMap()
	if path == "" {
		return fm, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fm, fmt.Errorf("read field map: %w", err)
	}

	var override FieldMap
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fm, fmt.Errorf("parse field map: %w", err)
	}

	if override.RequirementLink != "" {
		fm.RequirementLink = override.RequirementLink
	}
	if override.TestCaseID != "" {
		fm.TestCaseID = override.TestCaseID
	}
	if override.TestSteps != "" {
		fm.TestSteps = override.TestSteps
	}
	if override.ExpectedResults != "" {
		fm.ExpectedResults = override.ExpectedResults
	}
	if override.ComplianceStandards != "" {
		fm.ComplianceStandards = override.ComplianceStandards
	}
	if override.RiskCategory != "" {
		fm.RiskCategory = override.RiskCategory
	}
	if override.RegulatoryCitations != "" {
		fm.RegulatoryCitations = override.RegulatoryCitations
	}
	return fm, nil
}
