package featureswitch

import "github.com/switchgate/switchgate/scm"

// Requirement names and pivots understood by the consuming feature service.
const (
	RequirementMemberOf    = "PowerBI.MemberOf"
	RequirementNotMemberOf = "PowerBI.NotMemberOf"

	PivotRolloutName    = "RolloutName"
	PivotTenantObjectID = "TenantObjectId"
)

// RequirementParameters select the membership pivot and its value list.
type RequirementParameters struct {
	Pivot  string   `json:"Pivot"`
	Values []string `json:"Values"`
}

// Requirement is a single membership predicate gating a stage.
type Requirement struct {
	Name       string                `json:"Name"`
	Parameters RequirementParameters `json:"Parameters"`
}

// StageConfig is one of two forms: a plain on/off switch, or a list of
// membership requirements. Never both; a stage update replaces the prior
// form wholesale.
type StageConfig struct {
	Enabled  *bool         `json:"Enabled,omitempty"`
	Requires []Requirement `json:"Requires,omitempty"`
}

// UpdateRequest is the high-level stage update a caller asks for.
//
// When TenantIDs or RolloutName is set the request is a membership update
// and Enabled selects MemberOf (true, the default when unset) versus
// NotMemberOf. With neither set, Enabled is the plain toggle.
type UpdateRequest struct {
	Enabled     *bool
	TenantIDs   []string
	RolloutName string
}

// Compile translates an UpdateRequest into the stage config schema.
//
// The consuming service requires the RolloutName requirement, when present,
// to precede the TenantObjectId requirement; that order is preserved here.
// A membership request with neither tenants nor a rollout is rejected: an
// empty Requires list would silently disable the stage for everyone, which
// is expressible explicitly via the toggle form instead.
func Compile(req UpdateRequest) (StageConfig, error) {
	if len(req.TenantIDs) == 0 && req.RolloutName == "" {
		if req.Enabled == nil {
			return StageConfig{}, scm.E(scm.KindInvalidRequest, "featureswitch.Compile",
				"empty requirement: provide enabled, tenantIds, or rolloutName")
		}
		return StageConfig{Enabled: req.Enabled}, nil
	}

	name := RequirementMemberOf
	if req.Enabled != nil && !*req.Enabled {
		name = RequirementNotMemberOf
	}

	var requires []Requirement
	if req.RolloutName != "" {
		requires = append(requires, Requirement{
			Name: name,
			Parameters: RequirementParameters{
				Pivot:  PivotRolloutName,
				Values: []string{req.RolloutName},
			},
		})
	}
	if len(req.TenantIDs) > 0 {
		requires = append(requires, Requirement{
			Name: name,
			Parameters: RequirementParameters{
				Pivot:  PivotTenantObjectID,
				Values: append([]string(nil), req.TenantIDs...),
			},
		})
	}
	return StageConfig{Requires: requires}, nil
}
