package model

import "time"

// CapabilityKind distinguishes the trigger side from the effect side of a service.
type CapabilityKind string

const (
	KindAction   CapabilityKind = "action"
	KindReaction CapabilityKind = "reaction"
)

// Service is a connector's registration metadata.
type Service struct {
	Name        string `json:"name" yaml:"name"`
	AuthType    string `json:"authType" yaml:"auth_type"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Field describes one parameter for client-side form rendering. It is not enforced.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Label       string `json:"label,omitempty" yaml:"label"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder"`
}

// Capability is an Action or Reaction definition in the catalog.
// Identifier is the dispatch key, never Name.
type Capability struct {
	ID          string         `json:"id"`
	Service     string         `json:"service"`
	Kind        CapabilityKind `json:"kind"`
	Identifier  string         `json:"identifier"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Fields      []Field        `json:"fields,omitempty"`
}

// CapabilityID derives the stable catalog id for a service identifier.
func CapabilityID(service string, kind CapabilityKind, identifier string) string {
	return string(kind) + ":" + service + ":" + identifier
}

// Binding is an AREA's resolved reference to a catalog capability.
type Binding struct {
	CapabilityID string `json:"capabilityId"`
	Service      string `json:"service"`
	Identifier   string `json:"identifier"`
}

// Area is a user-owned automation rule pairing one trigger with one effect.
type Area struct {
	AreaID         string         `json:"areaId"`
	UserID         string         `json:"userId"`
	Name           string         `json:"name"`
	Action         Binding        `json:"action"`
	Reaction       Binding        `json:"reaction"`
	ActionParams   map[string]any `json:"actionParams,omitempty"`
	ReactionParams map[string]any `json:"reactionParams,omitempty"`
	Active         bool           `json:"active"`
	LastExecutedAt *time.Time     `json:"lastExecutedAt,omitempty"`
	CreationTime   time.Time      `json:"creationTime"`
}

// Credential is a per-user OAuth token for one service.
type Credential struct {
	UserID       string     `json:"userId"`
	Service      string     `json:"service"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	UpdateTime   time.Time  `json:"updateTime"`
}

// Outcome of one AREA evaluation.
type Outcome string

const (
	OutcomeTriggered    Outcome = "triggered"
	OutcomeNotTriggered Outcome = "not_triggered"
	OutcomeError        Outcome = "error"
)

// Execution is an append-only audit record of one evaluation.
type Execution struct {
	ExecutionID string         `json:"executionId"`
	AreaID      string         `json:"areaId"`
	Outcome     Outcome        `json:"outcome"`
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	Snapshot    map[string]any `json:"snapshot,omitempty"`
	ExecutedAt  time.Time      `json:"executedAt"`
}
