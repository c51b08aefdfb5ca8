package agents

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/resumeforge/tailorcore/coreerrors"
)

// Each agent's output is additionally checked against a JSON Schema before
// being accepted as a checkpoint, strengthening (never replacing) the
// sentinel/fence parsing above: the sentinel block or fenced JSON is still
// required and parsed first, exactly as spec.md's Open Question leaves it;
// this is a supplementary acceptance gate on the resulting document.
const (
	analyzerSchemaJSON = `{
  "type": "object",
  "required": ["job_title", "requirements", "keywords", "role_signals"],
  "properties": {
    "job_title": {"type": "string"},
    "requirements": {
      "type": "object",
      "required": ["must_have", "nice_to_have"],
      "properties": {
        "must_have": {"type": "array", "items": {"type": "string"}},
        "nice_to_have": {"type": "array", "items": {"type": "string"}}
      }
    },
    "keywords": {"type": "array", "items": {"type": "string"}},
    "role_signals": {
      "type": "object",
      "required": ["seniority", "tech_stack"],
      "properties": {
        "seniority": {"type": "string"},
        "tech_stack": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

	strategySchemaJSON = `{
  "type": "object",
  "required": ["strategy"],
  "properties": {
    "strategy": {
      "type": "object",
      "required": ["sections_to_modify", "keyword_plan", "experience_mapping", "highlights"],
      "properties": {
        "sections_to_modify": {"type": "array", "items": {"type": "string"}},
        "keyword_plan": {"type": "array", "items": {"type": "string"}},
        "experience_mapping": {"type": "array", "items": {"type": "string"}},
        "highlights": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

	builderSchemaJSON = `{
  "type": "object",
  "required": ["optimized_resume_text", "changes"],
  "properties": {
    "optimized_resume_text": {"type": "string", "minLength": 1},
    "changes": {"type": "array"}
  }
}`

	validatorSchemaJSON = `{
  "type": "object",
  "required": ["scores"],
  "properties": {
    "scores": {
      "type": "object",
      "required": ["requirements_match", "ats_optimization", "cultural_fit", "presentation_quality", "competitive_positioning", "overall_score"],
      "properties": {
        "requirements_match": {"type": "integer", "minimum": 0, "maximum": 100},
        "ats_optimization": {"type": "integer", "minimum": 0, "maximum": 100},
        "cultural_fit": {"type": "integer", "minimum": 0, "maximum": 100},
        "presentation_quality": {"type": "integer", "minimum": 0, "maximum": 100},
        "competitive_positioning": {"type": "integer", "minimum": 0, "maximum": 100},
        "overall_score": {"type": "integer", "minimum": 0, "maximum": 100}
      }
    }
  }
}`

	polisherSchemaJSON = `{
  "type": "object",
  "required": ["polished_resume_text", "export_artifact"],
  "properties": {
    "polished_resume_text": {"type": "string", "minLength": 1},
    "export_artifact": {
      "type": "object",
      "required": ["template", "sections"],
      "properties": {
        "template": {"type": "string"},
        "sections": {"type": "array"}
      }
    }
  }
}`
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
)

func compileSchemas() map[string]*jsonschema.Schema {
	schemasOnce.Do(func() {
		schemas = map[string]*jsonschema.Schema{
			"analyzer":  mustCompileSchema("analyzer.schema.json", analyzerSchemaJSON),
			"strategy":  mustCompileSchema("strategy.schema.json", strategySchemaJSON),
			"builder":   mustCompileSchema("builder.schema.json", builderSchemaJSON),
			"validator": mustCompileSchema("validator.schema.json", validatorSchemaJSON),
			"polisher":  mustCompileSchema("polisher.schema.json", polisherSchemaJSON),
		}
	})
	return schemas
}

func mustCompileSchema(resourceName, schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic("agents: unmarshal schema " + resourceName + ": " + err.Error())
	}
	if err := c.AddResource(resourceName, doc); err != nil {
		panic("agents: add schema resource " + resourceName + ": " + err.Error())
	}
	sch, err := c.Compile(resourceName)
	if err != nil {
		panic("agents: compile schema " + resourceName + ": " + err.Error())
	}
	return sch
}

// validateSchema checks raw (the parsed agent output) against the named
// agent's JSON Schema, returning a RECOVERABLE AGENT_PARSE error on mismatch.
func validateSchema(agentName string, raw json.RawMessage) error {
	sch, ok := compileSchemas()[agentName]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return coreerrors.New(coreerrors.Recoverable, coreerrors.TypeAgentParse, "", fmt.Sprintf("%s output is not valid JSON: %v", agentName, err), err)
	}
	if err := sch.Validate(v); err != nil {
		return coreerrors.New(coreerrors.Recoverable, coreerrors.TypeAgentParse, "", fmt.Sprintf("%s output failed schema validation: %v", agentName, err), err)
	}
	return nil
}
