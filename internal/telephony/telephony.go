// Package telephony is the control-plane core: it scopes trunks, dispatch
// rules and calls to tenants on top of a gateway that has no native
// tenancy, translates between the gateway's object model and the tenant
// view, and keeps the local call ledger.
package telephony

import (
	"context"

	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/scope"
)

// Tenant is the resolved caller identity. Every entry point takes one
// explicitly; nothing in this package reads ambient tenant state. An empty
// ProjectID means account-level scope (all projects the owner has).
type Tenant struct {
	OwnerID   string
	ProjectID string
}

// tag builds the scope tag stamped onto gateway objects for this tenant.
func (t Tenant) tag(clientMetadata string) scope.Tag {
	return scope.Tag{
		OwnerID:        t.OwnerID,
		ProjectID:      t.ProjectID,
		ClientMetadata: clientMetadata,
	}
}

// projectOrGlobal returns the room-namespace key for this tenant. Calls
// placed without a project selected share the owner's "global" namespace.
func (t Tenant) projectOrGlobal() string {
	if t.ProjectID == "" {
		return "global"
	}
	return t.ProjectID
}

// Gateway is the slice of the gateway client this package consumes.
// *gateway.Client implements it; tests use a fake.
type Gateway interface {
	ListInboundTrunks(ctx context.Context) ([]gateway.InboundTrunkInfo, error)
	ListOutboundTrunks(ctx context.Context) ([]gateway.OutboundTrunkInfo, error)
	CreateInboundTrunk(ctx context.Context, trunk gateway.InboundTrunkInfo) (*gateway.InboundTrunkInfo, error)
	CreateOutboundTrunk(ctx context.Context, trunk gateway.OutboundTrunkInfo) (*gateway.OutboundTrunkInfo, error)
	UpdateInboundTrunk(ctx context.Context, trunkID string, update gateway.InboundTrunkUpdate) (*gateway.InboundTrunkInfo, error)
	UpdateOutboundTrunk(ctx context.Context, trunkID string, update gateway.OutboundTrunkUpdate) (*gateway.OutboundTrunkInfo, error)
	DeleteTrunk(ctx context.Context, trunkID string) error

	ListDispatchRules(ctx context.Context) ([]gateway.DispatchRuleInfo, error)
	CreateDispatchRule(ctx context.Context, rule gateway.DispatchRuleInfo) (*gateway.DispatchRuleInfo, error)
	UpdateDispatchRule(ctx context.Context, ruleID string, update gateway.DispatchRuleUpdate) (*gateway.DispatchRuleInfo, error)
	DeleteDispatchRule(ctx context.Context, ruleID string) error

	CreateParticipant(ctx context.Context, req gateway.CreateParticipantRequest) (*gateway.ParticipantInfo, error)
	RemoveParticipant(ctx context.Context, roomName, identity string) error
}
