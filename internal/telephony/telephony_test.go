package telephony

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/voiceops/voiceops/internal/gateway"
)

// fakeGateway is an in-memory stand-in for the remote control plane. It
// stores objects exactly as handed to it and assigns sequential ids, which
// keeps assertions deterministic.
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	inbound  []gateway.InboundTrunkInfo
	outbound []gateway.OutboundTrunkInfo
	rules    []gateway.DispatchRuleInfo

	participants []gateway.CreateParticipantRequest
	removed      []string // "room/identity"

	failRuleUpdate    error
	failRemove        error
	failCreatePartial error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (f *fakeGateway) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *fakeGateway) ListInboundTrunks(ctx context.Context) ([]gateway.InboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.InboundTrunkInfo(nil), f.inbound...), nil
}

func (f *fakeGateway) ListOutboundTrunks(ctx context.Context) ([]gateway.OutboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.OutboundTrunkInfo(nil), f.outbound...), nil
}

func (f *fakeGateway) CreateInboundTrunk(ctx context.Context, trunk gateway.InboundTrunkInfo) (*gateway.InboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trunk.SIPTrunkID = f.nextID("ST_in_")
	f.inbound = append(f.inbound, trunk)
	return &trunk, nil
}

func (f *fakeGateway) CreateOutboundTrunk(ctx context.Context, trunk gateway.OutboundTrunkInfo) (*gateway.OutboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trunk.SIPTrunkID = f.nextID("ST_out_")
	f.outbound = append(f.outbound, trunk)
	return &trunk, nil
}

func (f *fakeGateway) UpdateInboundTrunk(ctx context.Context, trunkID string, update gateway.InboundTrunkUpdate) (*gateway.InboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.inbound {
		if f.inbound[i].SIPTrunkID != trunkID {
			continue
		}
		t := &f.inbound[i]
		if update.Name != nil {
			t.Name = *update.Name
		}
		if update.Metadata != nil {
			t.Metadata = *update.Metadata
		}
		if update.Numbers != nil {
			t.Numbers = update.Numbers.Set
		}
		if update.AllowedAddresses != nil {
			t.AllowedAddresses = update.AllowedAddresses.Set
		}
		if update.AllowedNumbers != nil {
			t.AllowedNumbers = update.AllowedNumbers.Set
		}
		if update.AuthUsername != nil {
			t.AuthUsername = *update.AuthUsername
		}
		if update.AuthPassword != nil {
			t.AuthPassword = *update.AuthPassword
		}
		copied := *t
		return &copied, nil
	}
	return nil, fmt.Errorf("inbound trunk %s not found", trunkID)
}

func (f *fakeGateway) UpdateOutboundTrunk(ctx context.Context, trunkID string, update gateway.OutboundTrunkUpdate) (*gateway.OutboundTrunkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.outbound {
		if f.outbound[i].SIPTrunkID != trunkID {
			continue
		}
		t := &f.outbound[i]
		if update.Name != nil {
			t.Name = *update.Name
		}
		if update.Metadata != nil {
			t.Metadata = *update.Metadata
		}
		if update.Address != nil {
			t.Address = *update.Address
		}
		if update.Numbers != nil {
			t.Numbers = update.Numbers.Set
		}
		if update.AuthUsername != nil {
			t.AuthUsername = *update.AuthUsername
		}
		if update.AuthPassword != nil {
			t.AuthPassword = *update.AuthPassword
		}
		if update.DestinationCountry != nil {
			t.DestinationCountry = *update.DestinationCountry
		}
		copied := *t
		return &copied, nil
	}
	return nil, fmt.Errorf("outbound trunk %s not found", trunkID)
}

func (f *fakeGateway) DeleteTrunk(ctx context.Context, trunkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.inbound {
		if f.inbound[i].SIPTrunkID == trunkID {
			f.inbound = append(f.inbound[:i], f.inbound[i+1:]...)
			return nil
		}
	}
	for i := range f.outbound {
		if f.outbound[i].SIPTrunkID == trunkID {
			f.outbound = append(f.outbound[:i], f.outbound[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("trunk %s not found", trunkID)
}

func (f *fakeGateway) ListDispatchRules(ctx context.Context) ([]gateway.DispatchRuleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.DispatchRuleInfo(nil), f.rules...), nil
}

func (f *fakeGateway) CreateDispatchRule(ctx context.Context, rule gateway.DispatchRuleInfo) (*gateway.DispatchRuleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.SIPDispatchRuleID = f.nextID("SDR_")
	f.rules = append(f.rules, rule)
	return &rule, nil
}

func (f *fakeGateway) UpdateDispatchRule(ctx context.Context, ruleID string, update gateway.DispatchRuleUpdate) (*gateway.DispatchRuleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRuleUpdate != nil {
		return nil, f.failRuleUpdate
	}
	for i := range f.rules {
		if f.rules[i].SIPDispatchRuleID != ruleID {
			continue
		}
		r := &f.rules[i]
		if update.Name != nil {
			r.Name = *update.Name
		}
		if update.Metadata != nil {
			r.Metadata = *update.Metadata
		}
		if update.TrunkIDs != nil {
			r.TrunkIDs = update.TrunkIDs.Set
		}
		if update.Attributes != nil {
			r.Attributes = update.Attributes
		}
		if update.Rule != nil {
			r.Rule = *update.Rule
		}
		copied := *r
		return &copied, nil
	}
	return nil, fmt.Errorf("dispatch rule %s not found", ruleID)
}

func (f *fakeGateway) DeleteDispatchRule(ctx context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].SIPDispatchRuleID == ruleID {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dispatch rule %s not found", ruleID)
}

func (f *fakeGateway) CreateParticipant(ctx context.Context, req gateway.CreateParticipantRequest) (*gateway.ParticipantInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreatePartial != nil {
		return nil, f.failCreatePartial
	}
	f.participants = append(f.participants, req)
	return &gateway.ParticipantInfo{
		ParticipantID:       f.nextID("PA_"),
		ParticipantIdentity: req.ParticipantIdentity,
		RoomName:            req.RoomName,
		SIPCallID:           f.nextID("SCL_"),
	}, nil
}

func (f *fakeGateway) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove != nil {
		return f.failRemove
	}
	f.removed = append(f.removed, roomName+"/"+identity)
	return nil
}

var _ Gateway = (*fakeGateway)(nil)
var errUpstream = errors.New("upstream unavailable")
