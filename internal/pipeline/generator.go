// Package pipeline drives document ingestion through test case generation.
// Model invocation is a thin wrapper over a managed generative service; the
// export pipeline proper lives in the queue/export/evidence packages.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jfellner/veritest-go/internal/config"
	"github.com/jfellner/veritest-go/internal/metrics"
	"github.com/jfellner/veritest-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const requirementParserPrompt = `# ROLE
You are an expert Healthcare QA Engineer specializing in medical device software validation, with deep knowledge of FDA regulations, IEC 62304, ISO 13485, and HIPAA.

# TASK
Parse the following healthcare software requirements document and extract structured requirement objects. Map each requirement to appropriate compliance standards and risk classifications.

# OUTPUT FORMAT
Return a JSON array of requirements with this exact structure:
[
  {
    "requirement_id": "REQ-XXX",
    "title": "Brief requirement title",
    "description": "Complete requirement description",
    "priority": "Critical|High|Medium|Low",
    "acceptance_criteria": ["criterion 1", "criterion 2"],
    "risk_class": "High|Medium|Low",
    "iec_class": "Class A|Class B|Class C",
    "traceability_links": ["FDA 21CFR820", "IEC 62304"],
    "compliance_standards": ["FDA", "IEC 62304", "HIPAA"]
  }
]

# DOCUMENT TO PARSE:
%s

IMPORTANT: Return ONLY the JSON array, no other text.`

const testGeneratorPrompt = `# ROLE
You are a Senior QA Engineer for medical device software, expert in creating compliant test cases that satisfy FDA, IEC 62304, and ISO 13485 requirements.

# COMPLIANCE CONTEXT
%s

# REQUIREMENT TO TEST
%s

# TASK
Generate comprehensive test cases for this healthcare requirement. Include positive, negative, boundary, and performance scenarios as appropriate for the risk class. Every test case must cite specific compliance standards and trace back to the requirement.

# OUTPUT FORMAT
Return a JSON array of test cases with this exact structure:
[
  {
    "test_case_id": "TC-<requirement_id>-01",
    "requirement_id": "<requirement_id>",
    "title": "Descriptive test case title",
    "description": "What this test validates",
    "test_type": "Positive|Negative|Boundary|Performance",
    "priority": "Critical|High|Medium|Low",
    "steps": [
      {"step": 1, "action": "Step description", "expected_result": "Expected outcome"}
    ],
    "expected_results": "Overall expected test outcome",
    "compliance_validation": "What compliance requirement this validates",
    "regulatory_citations": ["IEC 62304 Section X.X"],
    "risk_category": "Safety|Security|Performance|Usability",
    "automation_feasible": true
  }
]

IMPORTANT: Return ONLY the JSON array, no other text.`

// Generator wraps the managed Gemini model for requirement parsing and test
// case generation.
type Generator struct {
	llm     llms.Model
	metrics *metrics.Collector
}

// NewGenerator creates a Gemini-backed generator.
func NewGenerator(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GeminiAPIKey),
		googleai.WithDefaultModel(cfg.GeminiModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini model: %w", err)
	}

	return &Generator{llm: model, metrics: mc}, nil
}

// ParseRequirements extracts structured requirements from document text.
// Low temperature keeps the parse deterministic.
func (g *Generator) ParseRequirements(ctx context.Context, documentText string) ([]models.Requirement, error) {
	prompt := fmt.Sprintf(requirementParserPrompt, documentText)

	raw, err := g.generate(ctx, prompt, 0.1, 4096)
	if err != nil {
		return nil, fmt.Errorf("parse requirements: %w", err)
	}

	var requirements []models.Requirement
	if err := json.Unmarshal([]byte(StripJSONFence(raw)), &requirements); err != nil {
		return nil, fmt.Errorf("malformed requirements output: %w", err)
	}
	return requirements, nil
}

// GenerateTestCases produces test cases for one requirement, grounded in the
// supplied compliance context (from the out-of-scope retrieval collaborator).
func (g *Generator) GenerateTestCases(ctx context.Context, req models.Requirement, complianceContext string) ([]models.TestCase, error) {
	reqJSON, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal requirement: %w", err)
	}

	prompt := fmt.Sprintf(testGeneratorPrompt, complianceContext, string(reqJSON))

	raw, err := g.generate(ctx, prompt, 0.2, 8192)
	if err != nil {
		return nil, fmt.Errorf("generate test cases for %s: %w", req.RequirementID, err)
	}

	var cases []models.TestCase
	if err := json.Unmarshal([]byte(StripJSONFence(raw)), &cases); err != nil {
		return nil, fmt.Errorf("malformed test case output for %s: %w", req.RequirementID, err)
	}

	// Carry requirement-level standards onto each case for the tracker export.
	for i := range cases {
		if len(cases[i].ComplianceStandards) == 0 {
			cases[i].ComplianceStandards = req.ComplianceStandards
		}
	}
	return cases, nil
}

func (g *Generator) generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if g.metrics != nil {
		g.metrics.RecordTiming(metrics.OpLLMGenerate, time.Since(start))
	}
	return out, err
}

// StripJSONFence removes a markdown code fence around a JSON payload, which
// the model emits despite instructions.
func StripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
