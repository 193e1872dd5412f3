package gateway

// Native object shapes of the external gateway's SIP service. The gateway
// splits trunks into two distinct kinds and models a dispatch rule as a
// tagged union of three variants; nothing here carries tenant identity
// beyond the opaque Metadata string.

// Transport selects the signaling transport for an outbound trunk.
type Transport string

const (
	TransportAuto Transport = "auto"
	TransportUDP  Transport = "udp"
	TransportTCP  Transport = "tcp"
	TransportTLS  Transport = "tls"
)

// ParseTransport normalizes a transport string, defaulting to auto on
// empty or unrecognized input. Never an error: trunk creation should not
// fail on a cosmetic field.
func ParseTransport(s string) Transport {
	switch Transport(s) {
	case TransportUDP, TransportTCP, TransportTLS:
		return Transport(s)
	default:
		return TransportAuto
	}
}

// InboundTrunkInfo is the gateway's inbound (call-receiving) trunk object.
type InboundTrunkInfo struct {
	SIPTrunkID          string            `json:"sip_trunk_id"`
	Name                string            `json:"name"`
	Metadata            string            `json:"metadata"`
	Numbers             []string          `json:"numbers"`
	AllowedAddresses    []string          `json:"allowed_addresses"`
	AllowedNumbers      []string          `json:"allowed_numbers"`
	AuthUsername        string            `json:"auth_username"`
	AuthPassword        string            `json:"auth_password,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	HeadersToAttributes map[string]string `json:"headers_to_attributes,omitempty"`
}

// OutboundTrunkInfo is the gateway's outbound (call-placing) trunk object.
type OutboundTrunkInfo struct {
	SIPTrunkID          string            `json:"sip_trunk_id"`
	Name                string            `json:"name"`
	Metadata            string            `json:"metadata"`
	Address             string            `json:"address"`
	Transport           Transport         `json:"transport"`
	Numbers             []string          `json:"numbers"`
	AuthUsername        string            `json:"auth_username"`
	AuthPassword        string            `json:"auth_password,omitempty"`
	DestinationCountry  string            `json:"destination_country,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	HeadersToAttributes map[string]string `json:"headers_to_attributes,omitempty"`
}

// DispatchRuleSpec is the gateway's rule body: a tagged union with exactly
// one variant populated. The three cases are disjoint in the wire format,
// so decoding a rule's kind is unambiguous.
type DispatchRuleSpec struct {
	Direct     *DispatchRuleDirect     `json:"dispatch_rule_direct,omitempty"`
	Individual *DispatchRuleIndividual `json:"dispatch_rule_individual,omitempty"`
	Callee     *DispatchRuleCallee     `json:"dispatch_rule_callee,omitempty"`
}

// DispatchRuleDirect routes every matching call into one fixed room.
type DispatchRuleDirect struct {
	RoomName string `json:"room_name"`
	Pin      string `json:"pin,omitempty"`
}

// DispatchRuleIndividual gives each call its own room named prefix+suffix.
type DispatchRuleIndividual struct {
	RoomPrefix string `json:"room_prefix"`
	Pin        string `json:"pin,omitempty"`
}

// DispatchRuleCallee is like individual but rooms are keyed by the dialed
// number, optionally with a randomized suffix.
type DispatchRuleCallee struct {
	RoomPrefix string `json:"room_prefix"`
	Pin        string `json:"pin,omitempty"`
	Randomize  bool   `json:"randomize,omitempty"`
}

// DispatchRuleInfo is a stored dispatch rule.
type DispatchRuleInfo struct {
	SIPDispatchRuleID string            `json:"sip_dispatch_rule_id"`
	Name              string            `json:"name"`
	Metadata          string            `json:"metadata"`
	TrunkIDs          []string          `json:"trunk_ids"`
	HidePhoneNumber   bool              `json:"hide_phone_number"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	Rule              DispatchRuleSpec  `json:"rule"`
}

// ParticipantInfo describes a SIP participant the gateway placed into a room.
type ParticipantInfo struct {
	ParticipantID       string `json:"participant_id"`
	ParticipantIdentity string `json:"participant_identity"`
	RoomName            string `json:"room_name"`
	SIPCallID           string `json:"sip_call_id"`
}

// ListUpdate replaces a repeated field wholesale in an update request.
// The gateway distinguishes "leave untouched" (absent) from "set to empty"
// (present with an empty Set).
type ListUpdate struct {
	Set []string `json:"set"`
}

// SetList builds a ListUpdate replacing the field with the given values.
func SetList(values []string) *ListUpdate {
	if values == nil {
		values = []string{}
	}
	return &ListUpdate{Set: values}
}

// InboundTrunkUpdate carries a partial update for an inbound trunk.
// Nil fields are left untouched by the gateway.
type InboundTrunkUpdate struct {
	Name             *string     `json:"name,omitempty"`
	Metadata         *string     `json:"metadata,omitempty"`
	Numbers          *ListUpdate `json:"numbers,omitempty"`
	AllowedAddresses *ListUpdate `json:"allowed_addresses,omitempty"`
	AllowedNumbers   *ListUpdate `json:"allowed_numbers,omitempty"`
	AuthUsername     *string     `json:"auth_username,omitempty"`
	AuthPassword     *string     `json:"auth_password,omitempty"`
}

// OutboundTrunkUpdate carries a partial update for an outbound trunk.
type OutboundTrunkUpdate struct {
	Name               *string     `json:"name,omitempty"`
	Metadata           *string     `json:"metadata,omitempty"`
	Address            *string     `json:"address,omitempty"`
	Transport          *Transport  `json:"transport,omitempty"`
	Numbers            *ListUpdate `json:"numbers,omitempty"`
	AuthUsername       *string     `json:"auth_username,omitempty"`
	AuthPassword       *string     `json:"auth_password,omitempty"`
	DestinationCountry *string     `json:"destination_country,omitempty"`
}

// DispatchRuleUpdate carries a partial update for a dispatch rule.
type DispatchRuleUpdate struct {
	Name       *string           `json:"name,omitempty"`
	Metadata   *string           `json:"metadata,omitempty"`
	TrunkIDs   *ListUpdate       `json:"trunk_ids,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Rule       *DispatchRuleSpec `json:"rule,omitempty"`
}

// CreateParticipantRequest asks the gateway to originate a SIP call and
// place the resulting participant into a room.
type CreateParticipantRequest struct {
	SIPTrunkID          string `json:"sip_trunk_id"`
	SIPCallTo           string `json:"sip_call_to"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name,omitempty"`
}
