package telephony

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/scope"
)

// Tenant-facing rule types. Unknown inputs coerce to direct rather than
// erroring, so stale clients keep working after a type is retired.
const (
	RuleTypeDirect     = "direct"
	RuleTypeIndividual = "individual"
	RuleTypeCallee     = "callee"
)

const (
	defaultRuleRoomName   = "default-sip-room"
	defaultRuleRoomPrefix = "inbound-"
)

// DispatchRule is the tenant-facing flat view of the gateway's rule union.
// RoomName is meaningful for direct rules, RoomPrefix and Randomize for the
// prefix-based kinds.
type DispatchRule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RuleType        string    `json:"rule_type"`
	TrunkIDs        []string  `json:"trunk_ids"`
	RoomName        string    `json:"room_name,omitempty"`
	RoomPrefix      string    `json:"room_prefix,omitempty"`
	Pin             string    `json:"pin,omitempty"`
	Randomize       bool      `json:"randomize,omitempty"`
	HidePhoneNumber bool      `json:"hide_phone_number"`
	AgentID         string    `json:"agent_id,omitempty"`
	Scope           scope.Tag `json:"-"`
}

// RuleService manages dispatch rules at the gateway on behalf of tenants.
type RuleService struct {
	gw Gateway
}

func NewRuleService(gw Gateway) *RuleService {
	return &RuleService{gw: gw}
}

// mapRule flattens a native rule into the tenant view. Room names in a
// direct rule come back namespaced; the tenant sees the bare name.
func mapRule(r gateway.DispatchRuleInfo) DispatchRule {
	rule := DispatchRule{
		ID:              r.SIPDispatchRuleID,
		Name:            r.Name,
		TrunkIDs:        emptyIfNil(r.TrunkIDs),
		HidePhoneNumber: r.HidePhoneNumber,
		AgentID:         r.Attributes["agent_id"],
		Scope:           scope.Decode(r.Metadata),
	}
	switch {
	case r.Rule.Callee != nil:
		rule.RuleType = RuleTypeCallee
		rule.RoomPrefix = r.Rule.Callee.RoomPrefix
		rule.Pin = r.Rule.Callee.Pin
		rule.Randomize = r.Rule.Callee.Randomize
	case r.Rule.Individual != nil:
		rule.RuleType = RuleTypeIndividual
		rule.RoomPrefix = r.Rule.Individual.RoomPrefix
		rule.Pin = r.Rule.Individual.Pin
	default:
		rule.RuleType = RuleTypeDirect
		if r.Rule.Direct != nil {
			key := rule.Scope.ProjectID
			if key == "" {
				key = "global"
			}
			rule.RoomName = scope.BareRoomName(r.Rule.Direct.RoomName, key)
			rule.Pin = r.Rule.Direct.Pin
		}
	}
	return rule
}

// CreateRuleInput describes a dispatch rule to create. Zero-value RoomName
// and RoomPrefix take documented defaults for their rule type.
type CreateRuleInput struct {
	Name            string
	RuleType        string
	TrunkIDs        []string
	RoomName        string
	RoomPrefix      string
	Pin             string
	Randomize       bool
	HidePhoneNumber bool
	AgentID         string
	ClientMetadata  string
}

// buildRuleSpec assembles the union body for a rule type. projectKey is the
// tenant's room namespace, applied only to direct rules (prefix-based kinds
// name rooms per call, outside our namespacing).
func buildRuleSpec(ruleType string, input CreateRuleInput, projectKey string) gateway.DispatchRuleSpec {
	prefix := strings.TrimSpace(input.RoomPrefix)
	if prefix == "" {
		prefix = defaultRuleRoomPrefix
	}
	switch ruleType {
	case RuleTypeIndividual:
		return gateway.DispatchRuleSpec{Individual: &gateway.DispatchRuleIndividual{
			RoomPrefix: prefix,
			Pin:        input.Pin,
		}}
	case RuleTypeCallee:
		return gateway.DispatchRuleSpec{Callee: &gateway.DispatchRuleCallee{
			RoomPrefix: prefix,
			Pin:        input.Pin,
			Randomize:  input.Randomize,
		}}
	default:
		room := strings.TrimSpace(input.RoomName)
		if room == "" {
			room = defaultRuleRoomName
		}
		return gateway.DispatchRuleSpec{Direct: &gateway.DispatchRuleDirect{
			RoomName: scope.RoomName(room, projectKey),
			Pin:      input.Pin,
		}}
	}
}

func normalizeRuleType(ruleType string) string {
	switch ruleType {
	case RuleTypeIndividual, RuleTypeCallee:
		return ruleType
	default:
		return RuleTypeDirect
	}
}

// Create stores a new dispatch rule. Callee rules go through the gateway's
// two-step path: create as individual, then patch the body to callee. A
// failure on the patch leaves a live individual rule behind, reported as a
// PartialFailure carrying the rule's id so the caller can repair or delete.
func (s *RuleService) Create(ctx context.Context, tenant Tenant, input CreateRuleInput) (*DispatchRule, error) {
	if len(trimStrings(input.TrunkIDs)) == 0 {
		return nil, validationErrorf("at least one trunk_id is required")
	}

	ruleType := normalizeRuleType(input.RuleType)
	metadata := scope.Encode(tenant.tag(input.ClientMetadata))

	var attributes map[string]string
	if input.AgentID != "" {
		attributes = map[string]string{"agent_id": input.AgentID}
	}

	createType := ruleType
	if ruleType == RuleTypeCallee {
		createType = RuleTypeIndividual
	}

	created, err := s.gw.CreateDispatchRule(ctx, gateway.DispatchRuleInfo{
		Name:            strings.TrimSpace(input.Name),
		Metadata:        metadata,
		TrunkIDs:        trimStrings(input.TrunkIDs),
		HidePhoneNumber: input.HidePhoneNumber,
		Attributes:      attributes,
		Rule:            buildRuleSpec(createType, input, tenant.projectOrGlobal()),
	})
	if err != nil {
		return nil, err
	}

	if ruleType == RuleTypeCallee {
		spec := buildRuleSpec(RuleTypeCallee, input, tenant.projectOrGlobal())
		patched, err := s.gw.UpdateDispatchRule(ctx, created.SIPDispatchRuleID, gateway.DispatchRuleUpdate{
			Rule: &spec,
		})
		if err != nil {
			half := mapRule(*created)
			slog.Error("callee rule patch failed, rule left in individual form",
				"rule_id", created.SIPDispatchRuleID, "owner", tenant.OwnerID, "error", err)
			return nil, &PartialFailure{
				RuleID: created.SIPDispatchRuleID,
				Rule:   &half,
				Err:    err,
			}
		}
		created = patched
	}

	rule := mapRule(*created)
	slog.Info("dispatch rule created", "rule_id", rule.ID, "rule_type", rule.RuleType, "owner", tenant.OwnerID)
	return &rule, nil
}

// List returns the tenant's dispatch rules.
func (s *RuleService) List(ctx context.Context, tenant Tenant) ([]DispatchRule, error) {
	all, err := s.gw.ListDispatchRules(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]DispatchRule, 0, len(all))
	for _, r := range all {
		if scope.Matches(r.Metadata, tenant.OwnerID, tenant.ProjectID) {
			rules = append(rules, mapRule(r))
		}
	}
	return rules, nil
}

// Get returns a single scoped rule, or ErrNotFound.
func (s *RuleService) Get(ctx context.Context, tenant Tenant, ruleID string) (*DispatchRule, error) {
	native, err := s.findRule(ctx, tenant, ruleID)
	if err != nil {
		return nil, err
	}
	rule := mapRule(*native)
	return &rule, nil
}

// UpdateRuleInput is a partial rule update. Nil fields keep their existing
// values; variant fields (RoomName, RoomPrefix, Pin, Randomize) only carry
// over from the existing rule when its case matches the target type.
type UpdateRuleInput struct {
	Name           *string
	RuleType       *string
	TrunkIDs       *[]string
	RoomName       *string
	RoomPrefix     *string
	Pin            *string
	Randomize      *bool
	AgentID        *string
	ClientMetadata *string
}

// Update applies a partial update. Changing the rule type rebuilds the
// union body from scratch: unspecified variant fields fall back to the
// existing rule's values only if the existing case matches the target
// type, otherwise to the defaults.
func (s *RuleService) Update(ctx context.Context, tenant Tenant, ruleID string, input UpdateRuleInput) (*DispatchRule, error) {
	existing, err := s.findRule(ctx, tenant, ruleID)
	if err != nil {
		return nil, err
	}
	current := mapRule(*existing)

	targetType := current.RuleType
	if input.RuleType != nil {
		targetType = normalizeRuleType(*input.RuleType)
	}

	// Resolve each variant field: explicit input wins, then the existing
	// value when the variant case is unchanged, then the default.
	carry := targetType == current.RuleType
	spec := CreateRuleInput{Pin: current.Pin, Randomize: current.Randomize}
	if !carry {
		spec.Pin = ""
		spec.Randomize = false
	}
	if carry && targetType == RuleTypeDirect {
		spec.RoomName = current.RoomName
	}
	if carry && targetType != RuleTypeDirect {
		spec.RoomPrefix = current.RoomPrefix
	}
	if input.RoomName != nil {
		spec.RoomName = *input.RoomName
	}
	if input.RoomPrefix != nil {
		spec.RoomPrefix = *input.RoomPrefix
	}
	if input.Pin != nil {
		spec.Pin = *input.Pin
	}
	if input.Randomize != nil {
		spec.Randomize = *input.Randomize
	}
	body := buildRuleSpec(targetType, spec, tenant.projectOrGlobal())

	update := gateway.DispatchRuleUpdate{
		Name: input.Name,
		Rule: &body,
	}
	if input.TrunkIDs != nil {
		ids := trimStrings(*input.TrunkIDs)
		if len(ids) == 0 {
			return nil, validationErrorf("at least one trunk_id is required")
		}
		update.TrunkIDs = gateway.SetList(ids)
	}
	if input.AgentID != nil {
		attributes := map[string]string{}
		for k, v := range existing.Attributes {
			attributes[k] = v
		}
		if *input.AgentID == "" {
			delete(attributes, "agent_id")
		} else {
			attributes["agent_id"] = *input.AgentID
		}
		update.Attributes = attributes
	}
	if input.ClientMetadata != nil {
		projectID := tenant.ProjectID
		if projectID == "" {
			projectID = current.Scope.ProjectID
		}
		encoded := scope.Encode(scope.Tag{
			OwnerID:        tenant.OwnerID,
			ProjectID:      projectID,
			ClientMetadata: *input.ClientMetadata,
		})
		update.Metadata = &encoded
	}

	updated, err := s.gw.UpdateDispatchRule(ctx, ruleID, update)
	if err != nil {
		return nil, err
	}
	rule := mapRule(*updated)
	slog.Info("dispatch rule updated", "rule_id", ruleID, "rule_type", rule.RuleType, "owner", tenant.OwnerID)
	return &rule, nil
}

// Delete removes a scoped rule.
func (s *RuleService) Delete(ctx context.Context, tenant Tenant, ruleID string) error {
	if _, err := s.findRule(ctx, tenant, ruleID); err != nil {
		return err
	}
	if err := s.gw.DeleteDispatchRule(ctx, ruleID); err != nil {
		return err
	}
	slog.Info("dispatch rule deleted", "rule_id", ruleID, "owner", tenant.OwnerID)
	return nil
}

func (s *RuleService) findRule(ctx context.Context, tenant Tenant, ruleID string) (*gateway.DispatchRuleInfo, error) {
	all, err := s.gw.ListDispatchRules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		r := &all[i]
		if r.SIPDispatchRuleID == ruleID && scope.Matches(r.Metadata, tenant.OwnerID, tenant.ProjectID) {
			return r, nil
		}
	}
	return nil, ErrNotFound
}
