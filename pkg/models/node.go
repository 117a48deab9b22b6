package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType is the closed set of node kinds the workflow builder can place on the canvas.
type NodeType string

const (
	NodeTypeStart           NodeType = "start"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeTemplate        NodeType = "template"
	NodeTypeDelay           NodeType = "delay"
	NodeTypeCustom          NodeType = "custom"
	NodeTypeGemini          NodeType = "gemini"
	NodeTypeAPIRequest      NodeType = "apiRequest"
	NodeTypeAgent           NodeType = "agent"
	NodeTypeWebhook         NodeType = "webhook"
	NodeTypeSchedule        NodeType = "schedule"
	NodeTypeMerge           NodeType = "merge"
	NodeTypeSplitInBatches  NodeType = "splitInBatches"
	NodeTypeFilter          NodeType = "filter"
	NodeTypeSet             NodeType = "set"
	NodeTypeScraper         NodeType = "scraper"
	NodeTypeLinkedInScraper NodeType = "linkedinScraper"
	NodeTypeLinkedInMessage NodeType = "linkedinMessage"
	NodeTypeABSplit         NodeType = "abSplit"
	NodeTypeWhatsApp        NodeType = "whatsappNode"
	NodeTypeDatabase        NodeType = "database"
)

// AllNodeTypes lists every node type in declaration order.
var AllNodeTypes = []NodeType{
	NodeTypeStart, NodeTypeCondition, NodeTypeTemplate, NodeTypeDelay, NodeTypeCustom,
	NodeTypeGemini, NodeTypeAPIRequest, NodeTypeAgent, NodeTypeWebhook, NodeTypeSchedule,
	NodeTypeMerge, NodeTypeSplitInBatches, NodeTypeFilter, NodeTypeSet, NodeTypeScraper,
	NodeTypeLinkedInScraper, NodeTypeLinkedInMessage, NodeTypeABSplit, NodeTypeWhatsApp,
	NodeTypeDatabase,
}

// ErrUnknownNodeType is returned when a graph contains a node type outside the closed set.
var ErrUnknownNodeType = errors.New("unknown node type")

// Valid reports whether t belongs to the closed set.
func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Node is one vertex of a workflow graph. Config always holds the variant matching Type.
type Node struct {
	ID     string
	Type   NodeType
	Label  string
	Config NodeConfig
}

// DisplayName is the label shown in execution transcripts.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}

	return n.ID
}

type nodeData struct {
	Label  string          `json:"label,omitempty"`
	Type   NodeType        `json:"type,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

type wireNode struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Data     nodeData        `json:"data"`
	Position json.RawMessage `json:"position,omitempty"`
}

// UnmarshalJSON decodes the builder's {id, type, data:{label, config}} shape into the typed variant.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var wire wireNode

	err := json.Unmarshal(raw, &wire)
	if err != nil {
		return fmt.Errorf("failed to decode node: %w", err)
	}

	nodeType := wire.Type
	if !nodeType.Valid() && wire.Data.Type.Valid() {
		nodeType = wire.Data.Type
	}

	config, err := DecodeNodeConfig(nodeType, wire.Data.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", wire.ID, err)
	}

	n.ID = wire.ID
	n.Type = nodeType
	n.Label = wire.Data.Label
	n.Config = config

	return nil
}

// MarshalJSON writes the node back in the builder's shape.
func (n Node) MarshalJSON() ([]byte, error) {
	var config json.RawMessage

	if n.Config != nil {
		encoded, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config of node %s: %w", n.ID, err)
		}

		config = encoded
	}

	return json.Marshal(wireNode{
		ID:   n.ID,
		Type: n.Type,
		Data: nodeData{Label: n.Label, Config: config},
	})
}

// DecodeNodeConfig decodes raw config JSON into the variant for nodeType.
// A missing config yields the zero value of the variant.
func DecodeNodeConfig(nodeType NodeType, raw json.RawMessage) (NodeConfig, error) {
	config, err := newNodeConfig(nodeType)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return derefConfig(config), nil
	}

	err = json.Unmarshal(trimmed, config)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return derefConfig(config), nil
}

func newNodeConfig(nodeType NodeType) (any, error) {
	switch nodeType {
	case NodeTypeStart:
		return &StartConfig{}, nil
	case NodeTypeCondition:
		return &ConditionConfig{}, nil
	case NodeTypeTemplate:
		return &TemplateConfig{}, nil
	case NodeTypeDelay:
		return &DelayConfig{}, nil
	case NodeTypeCustom:
		return &CustomConfig{}, nil
	case NodeTypeGemini, NodeTypeAgent:
		return &AIConfig{}, nil
	case NodeTypeAPIRequest:
		return &APIRequestConfig{}, nil
	case NodeTypeDatabase:
		return &DatabaseConfig{}, nil
	case NodeTypeScraper:
		return &ScraperConfig{}, nil
	case NodeTypeLinkedInScraper:
		return &LinkedInScraperConfig{}, nil
	case NodeTypeLinkedInMessage:
		return &LinkedInMessageConfig{}, nil
	case NodeTypeWhatsApp:
		return &WhatsAppConfig{}, nil
	case NodeTypeABSplit:
		return &ABSplitConfig{}, nil
	case NodeTypeSet:
		return &SetConfig{}, nil
	case NodeTypeMerge:
		return &MergeConfig{}, nil
	case NodeTypeSplitInBatches:
		return &SplitInBatchesConfig{}, nil
	case NodeTypeFilter:
		return &FilterConfig{}, nil
	case NodeTypeWebhook:
		return &WebhookConfig{}, nil
	case NodeTypeSchedule:
		return &ScheduleConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

func derefConfig(config any) NodeConfig {
	switch c := config.(type) {
	case *StartConfig:
		return *c
	case *ConditionConfig:
		return *c
	case *TemplateConfig:
		return *c
	case *DelayConfig:
		return *c
	case *CustomConfig:
		return *c
	case *AIConfig:
		return *c
	case *APIRequestConfig:
		return *c
	case *DatabaseConfig:
		return *c
	case *ScraperConfig:
		return *c
	case *LinkedInScraperConfig:
		return *c
	case *LinkedInMessageConfig:
		return *c
	case *WhatsAppConfig:
		return *c
	case *ABSplitConfig:
		return *c
	case *SetConfig:
		return *c
	case *MergeConfig:
		return *c
	case *SplitInBatchesConfig:
		return *c
	case *FilterConfig:
		return *c
	case *WebhookConfig:
		return *c
	case *ScheduleConfig:
		return *c
	}

	return nil
}
