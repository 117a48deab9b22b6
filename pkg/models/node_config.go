package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// NodeConfig is the sealed sum type of per-node configuration. Only the variants in this
// file implement it, one per node type (gemini and agent share AIConfig).
type NodeConfig interface {
	nodeConfig()
}

// RawText accepts either a JSON string or any other JSON value, keeping the latter as its
// literal text. The builder stores headers and payloads as free text that may or may not be JSON.
type RawText string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawText) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		*r = ""

		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string

		err := json.Unmarshal(trimmed, &s)
		if err != nil {
			return err
		}

		*r = RawText(s)

		return nil
	}

	*r = RawText(trimmed)

	return nil
}

// FlexNumber accepts a JSON number or a numeric string.
type FlexNumber float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexNumber) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = 0

		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string

		err := json.Unmarshal(trimmed, &s)
		if err != nil {
			return err
		}

		if s == "" {
			*f = 0

			return nil
		}

		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}

		*f = FlexNumber(v)

		return nil
	}

	var v float64

	err := json.Unmarshal(trimmed, &v)
	if err != nil {
		return err
	}

	*f = FlexNumber(v)

	return nil
}

type StartConfig struct{}

type ConditionConfig struct {
	Condition string `json:"condition"`
}

// TemplateConfig drives the email-send node.
type TemplateConfig struct {
	TemplateID        string     `json:"templateId"`
	PreventDuplicates *bool      `json:"preventDuplicates,omitempty"`
	CooldownDays      FlexNumber `json:"cooldownDays,omitempty"`
}

// DuplicatesPrevented defaults to true when unset.
func (c TemplateConfig) DuplicatesPrevented() bool {
	return c.PreventDuplicates == nil || *c.PreventDuplicates
}

type DelayConfig struct {
	Hours   FlexNumber `json:"delayHours,omitempty"`
	Minutes FlexNumber `json:"delayMinutes,omitempty"`
}

type CustomConfig struct {
	Code string `json:"code"`
}

// AIConfig is shared by the gemini and agent node types.
type AIConfig struct {
	Prompt         string `json:"prompt"`
	Context        string `json:"context,omitempty"`
	Model          string `json:"model,omitempty"`
	OutputVariable string `json:"outputVariable,omitempty"`
}

type APIRequestConfig struct {
	URL     string  `json:"url"`
	Method  string  `json:"method,omitempty"`
	Headers RawText `json:"headers,omitempty"`
	Body    RawText `json:"body,omitempty"`
	// Extract is an optional jq filter applied to a JSON response; the result lands in variables.apiResult.
	Extract string `json:"extract,omitempty"`
}

// Database operations supported by the database node.
const (
	DatabaseInsert = "insert"
	DatabaseUpdate = "update"
	DatabaseUpsert = "upsert"
	DatabaseDelete = "delete"
)

type DatabaseConfig struct {
	Table           string   `json:"table"`
	Operation       string   `json:"operation"`
	Data            RawText  `json:"data,omitempty"`
	Where           RawText  `json:"where,omitempty"`
	ConflictColumns []string `json:"conflictColumns,omitempty"`
}

// Scraper actions.
const (
	ScraperFetchURL      = "fetch-url"
	ScraperExtractEmails = "extract-emails"
	ScraperCleanHTML     = "clean-html"
	ScraperMarkdown      = "markdown"
	ScraperSummarize     = "summarize"
)

type ScraperConfig struct {
	Action         string `json:"scraperAction"`
	Input          string `json:"input,omitempty"`
	URL            string `json:"url,omitempty"`
	OutputVariable string `json:"outputVariable,omitempty"`
}

type LinkedInScraperConfig struct {
	Keywords string `json:"keywords"`
	Location string `json:"location,omitempty"`
}

type LinkedInMessageConfig struct {
	Message    string `json:"message"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

type WhatsAppConfig struct {
	TemplateName     string   `json:"templateName"`
	TemplateLanguage string   `json:"templateLanguage,omitempty"`
	Variables        []string `json:"variables,omitempty"`
}

type ABSplitConfig struct {
	Weight *FlexNumber `json:"weight,omitempty"`
}

// WeightOrDefault returns the configured A-branch percentage, 50 when unset.
func (c ABSplitConfig) WeightOrDefault() float64 {
	if c.Weight == nil {
		return 50
	}

	return float64(*c.Weight)
}

type SetConfig struct {
	Values map[string]any `json:"values,omitempty"`
}

type MergeConfig struct{}

type SplitInBatchesConfig struct {
	BatchSize int `json:"batchSize,omitempty"`
}

type FilterConfig struct {
	Condition string `json:"condition,omitempty"`
}

type WebhookConfig struct {
	Path string `json:"path,omitempty"`
}

type ScheduleConfig struct {
	Cron string `json:"cron,omitempty"`
}

func (StartConfig) nodeConfig()           {}
func (ConditionConfig) nodeConfig()       {}
func (TemplateConfig) nodeConfig()        {}
func (DelayConfig) nodeConfig()           {}
func (CustomConfig) nodeConfig()          {}
func (AIConfig) nodeConfig()              {}
func (APIRequestConfig) nodeConfig()      {}
func (DatabaseConfig) nodeConfig()        {}
func (ScraperConfig) nodeConfig()         {}
func (LinkedInScraperConfig) nodeConfig() {}
func (LinkedInMessageConfig) nodeConfig() {}
func (WhatsAppConfig) nodeConfig()        {}
func (ABSplitConfig) nodeConfig()         {}
func (SetConfig) nodeConfig()             {}
func (MergeConfig) nodeConfig()           {}
func (SplitInBatchesConfig) nodeConfig()  {}
func (FilterConfig) nodeConfig()          {}
func (WebhookConfig) nodeConfig()         {}
func (ScheduleConfig) nodeConfig()        {}
