package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/scope"
)

// Trunk directions. A trunk's direction is always inferred from the
// presence of a non-empty outbound address; there is no stored flag that
// could disagree with the address.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const defaultTrunkName = "default-trunk"

// SipTrunk is the tenant-facing trunk shape. It is a read-through view
// over the gateway's two native trunk kinds and has no storage of its own.
// Exactly one of InboundAddresses (inbound) or OutboundAddress (outbound)
// is meaningful.
type SipTrunk struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Direction        string    `json:"direction"`
	Numbers          []string  `json:"numbers"`
	InboundAddresses []string  `json:"inbound_addresses"`
	OutboundAddress  string    `json:"outbound_address,omitempty"`
	SIPURI           string    `json:"sip_uri,omitempty"`
	AuthUsername     string    `json:"auth_username,omitempty"`
	Scope            scope.Tag `json:"-"`
}

// TrunkService normalizes the gateway's split inbound/outbound trunk kinds
// behind one tenant-facing surface. Pure mapping plus gateway calls; no
// local state.
type TrunkService struct {
	gw        Gateway
	sipDomain string
}

// NewTrunkService creates a TrunkService. sipDomain is the host used to
// synthesize display SIP URIs for inbound trunks (see config.SIPDomain).
func NewTrunkService(gw Gateway, sipDomain string) *TrunkService {
	return &TrunkService{gw: gw, sipDomain: sipDomain}
}

// mapInbound converts a native inbound trunk to the tenant view. The
// gateway supplies no URI for inbound trunks, so one is synthesized from
// the trunk id and the configured SIP domain.
func (s *TrunkService) mapInbound(t gateway.InboundTrunkInfo) SipTrunk {
	return SipTrunk{
		ID:               t.SIPTrunkID,
		Name:             t.Name,
		Direction:        DirectionInbound,
		Numbers:          emptyIfNil(t.Numbers),
		InboundAddresses: emptyIfNil(t.AllowedAddresses),
		SIPURI:           fmt.Sprintf("sip:%s@%s", t.SIPTrunkID, s.sipDomain),
		AuthUsername:     t.AuthUsername,
		Scope:            scope.Decode(t.Metadata),
	}
}

// mapOutbound converts a native outbound trunk to the tenant view.
func (s *TrunkService) mapOutbound(t gateway.OutboundTrunkInfo) SipTrunk {
	uri := ""
	if t.Address != "" {
		uri = "sip:" + t.Address
	}
	return SipTrunk{
		ID:               t.SIPTrunkID,
		Name:             t.Name,
		Direction:        DirectionOutbound,
		Numbers:          emptyIfNil(t.Numbers),
		InboundAddresses: []string{},
		OutboundAddress:  t.Address,
		SIPURI:           uri,
		AuthUsername:     t.AuthUsername,
		Scope:            scope.Decode(t.Metadata),
	}
}

// CreateTrunkInput describes a trunk to create. A non-empty OutboundAddress
// makes the trunk outbound; everything else makes it inbound.
type CreateTrunkInput struct {
	Name                string
	Numbers             []string
	InboundAddresses    []string
	OutboundAddress     string
	Transport           string // auto|tcp|udp|tls, anything else falls back to auto
	Username            string
	Password            string
	DestinationCountry  string
	Headers             map[string]string
	HeadersToAttributes map[string]string
	ClientMetadata      string
}

// Create stores a new trunk at the gateway, stamped with the tenant's
// scope tag.
func (s *TrunkService) Create(ctx context.Context, tenant Tenant, input CreateTrunkInput) (*SipTrunk, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = defaultTrunkName
	}
	numbers := trimStrings(input.Numbers)
	metadata := scope.Encode(tenant.tag(input.ClientMetadata))

	if input.OutboundAddress != "" {
		created, err := s.gw.CreateOutboundTrunk(ctx, gateway.OutboundTrunkInfo{
			Name:                name,
			Metadata:            metadata,
			Address:             input.OutboundAddress,
			Transport:           gateway.ParseTransport(input.Transport),
			Numbers:             numbers,
			AuthUsername:        input.Username,
			AuthPassword:        input.Password,
			DestinationCountry:  strings.ToUpper(input.DestinationCountry),
			Headers:             input.Headers,
			HeadersToAttributes: input.HeadersToAttributes,
		})
		if err != nil {
			return nil, err
		}
		trunk := s.mapOutbound(*created)
		slog.Info("outbound trunk created", "trunk_id", trunk.ID, "name", trunk.Name, "owner", tenant.OwnerID)
		return &trunk, nil
	}

	created, err := s.gw.CreateInboundTrunk(ctx, gateway.InboundTrunkInfo{
		Name:                name,
		Metadata:            metadata,
		Numbers:             numbers,
		AllowedAddresses:    trimStrings(input.InboundAddresses),
		AllowedNumbers:      numbers,
		AuthUsername:        input.Username,
		AuthPassword:        input.Password,
		Headers:             input.Headers,
		HeadersToAttributes: input.HeadersToAttributes,
	})
	if err != nil {
		return nil, err
	}
	trunk := s.mapInbound(*created)
	slog.Info("inbound trunk created", "trunk_id", trunk.ID, "name", trunk.Name, "owner", tenant.OwnerID)
	return &trunk, nil
}

// List returns every trunk of either kind in the tenant's scope. The
// gateway has no server-side filter, so both kinds are fetched whole and
// filtered here by decoded scope.
func (s *TrunkService) List(ctx context.Context, tenant Tenant) ([]SipTrunk, error) {
	inbound, err := s.gw.ListInboundTrunks(ctx)
	if err != nil {
		return nil, err
	}
	outbound, err := s.gw.ListOutboundTrunks(ctx)
	if err != nil {
		return nil, err
	}

	trunks := make([]SipTrunk, 0, len(inbound)+len(outbound))
	for _, t := range inbound {
		if scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			trunks = append(trunks, s.mapInbound(t))
		}
	}
	for _, t := range outbound {
		if scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			trunks = append(trunks, s.mapOutbound(t))
		}
	}
	return trunks, nil
}

// Get returns a single scoped trunk, or ErrNotFound. Scope misses and true
// absence are indistinguishable.
func (s *TrunkService) Get(ctx context.Context, tenant Tenant, trunkID string) (*SipTrunk, error) {
	in, out, err := s.findTrunk(ctx, tenant, trunkID)
	if err != nil {
		return nil, err
	}
	if out != nil {
		trunk := s.mapOutbound(*out)
		return &trunk, nil
	}
	trunk := s.mapInbound(*in)
	return &trunk, nil
}

// UpdateTrunkInput is a partial trunk update. Nil fields are left
// untouched; this applies per-field, not per-request.
type UpdateTrunkInput struct {
	Name               *string
	Numbers            *[]string
	InboundAddresses   *[]string
	Username           *string
	Password           *string
	DestinationCountry *string
	ClientMetadata     *string
}

// Update applies a partial update to a scoped trunk. Rewriting metadata
// preserves the owner and project of the existing tag unless the caller's
// tenant re-supplies a project.
func (s *TrunkService) Update(ctx context.Context, tenant Tenant, trunkID string, input UpdateTrunkInput) (*SipTrunk, error) {
	in, out, err := s.findTrunk(ctx, tenant, trunkID)
	if err != nil {
		return nil, err
	}

	var metadata *string
	if input.ClientMetadata != nil {
		existing := ""
		if out != nil {
			existing = out.Metadata
		} else {
			existing = in.Metadata
		}
		projectID := tenant.ProjectID
		if projectID == "" {
			projectID = scope.Decode(existing).ProjectID
		}
		encoded := scope.Encode(scope.Tag{
			OwnerID:        tenant.OwnerID,
			ProjectID:      projectID,
			ClientMetadata: *input.ClientMetadata,
		})
		metadata = &encoded
	}

	if out != nil {
		update := gateway.OutboundTrunkUpdate{
			Name:               input.Name,
			Metadata:           metadata,
			AuthUsername:       input.Username,
			AuthPassword:       input.Password,
			DestinationCountry: input.DestinationCountry,
		}
		if input.Numbers != nil {
			update.Numbers = gateway.SetList(trimStrings(*input.Numbers))
		}
		updated, err := s.gw.UpdateOutboundTrunk(ctx, trunkID, update)
		if err != nil {
			return nil, err
		}
		trunk := s.mapOutbound(*updated)
		slog.Info("outbound trunk updated", "trunk_id", trunkID, "owner", tenant.OwnerID)
		return &trunk, nil
	}

	update := gateway.InboundTrunkUpdate{
		Name:         input.Name,
		Metadata:     metadata,
		AuthUsername: input.Username,
		AuthPassword: input.Password,
	}
	if input.Numbers != nil {
		numbers := trimStrings(*input.Numbers)
		update.Numbers = gateway.SetList(numbers)
		update.AllowedNumbers = gateway.SetList(numbers)
	}
	if input.InboundAddresses != nil {
		update.AllowedAddresses = gateway.SetList(trimStrings(*input.InboundAddresses))
	}
	updated, err := s.gw.UpdateInboundTrunk(ctx, trunkID, update)
	if err != nil {
		return nil, err
	}
	trunk := s.mapInbound(*updated)
	slog.Info("inbound trunk updated", "trunk_id", trunkID, "owner", tenant.OwnerID)
	return &trunk, nil
}

// Delete removes a scoped trunk. The gateway delete is unconditional once
// ownership is verified; there is no local state to clean up.
func (s *TrunkService) Delete(ctx context.Context, tenant Tenant, trunkID string) error {
	if _, _, err := s.findTrunk(ctx, tenant, trunkID); err != nil {
		return err
	}
	if err := s.gw.DeleteTrunk(ctx, trunkID); err != nil {
		return err
	}
	slog.Info("trunk deleted", "trunk_id", trunkID, "owner", tenant.OwnerID)
	return nil
}

// findTrunk locates a trunk by id across both native kinds, scope-checked.
// Exactly one of the returns is non-nil on success.
func (s *TrunkService) findTrunk(ctx context.Context, tenant Tenant, trunkID string) (*gateway.InboundTrunkInfo, *gateway.OutboundTrunkInfo, error) {
	inbound, err := s.gw.ListInboundTrunks(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range inbound {
		t := &inbound[i]
		if t.SIPTrunkID == trunkID && scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			return t, nil, nil
		}
	}

	outbound, err := s.gw.ListOutboundTrunks(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range outbound {
		t := &outbound[i]
		if t.SIPTrunkID == trunkID && scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			return nil, t, nil
		}
	}

	return nil, nil, ErrNotFound
}

func trimStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
