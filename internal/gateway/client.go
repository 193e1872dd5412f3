// Package gateway is the HTTP client for the external realtime gateway's
// SIP and room services. Every request is a Twirp-style JSON POST
// authenticated with a short-lived JWT minted from the shared API
// credential. The gateway is single-tenant from its own point of view;
// callers layer scoping on top (see internal/scope).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	sipServicePath  = "/twirp/rtc.SIP/"
	roomServicePath = "/twirp/rtc.RoomService/"

	// tokenTTL bounds how long a minted request token stays valid.
	tokenTTL = 10 * time.Minute

	requestTimeout = 15 * time.Second
)

// APIError is a non-2xx response from the gateway, propagated to callers
// unchanged. Retry policy, if any, belongs to the transport, not here.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("gateway: %s (status %d)", e.Msg, e.Status)
	}
	return fmt.Sprintf("gateway: request failed with status %d", e.Status)
}

// Client talks to one gateway deployment with one administrative credential.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	http      *http.Client
}

// NewClient creates a gateway client. The base URL may carry a ws:// or
// wss:// scheme (gateway deployments usually advertise one); it is
// rewritten to the matching HTTP scheme.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(baseURL, "ws://"):
		baseURL = "http://" + strings.TrimPrefix(baseURL, "ws://")
	case strings.HasPrefix(baseURL, "wss://"):
		baseURL = "https://" + strings.TrimPrefix(baseURL, "wss://")
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// grantClaims is the gateway's expected token shape: registered claims with
// the API key as issuer plus a service grant.
type grantClaims struct {
	SIP   map[string]bool `json:"sip,omitempty"`
	Video map[string]bool `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// mintToken signs a short-lived admin token for one request.
func (c *Client) mintToken() (string, error) {
	now := time.Now()
	claims := grantClaims{
		SIP:   map[string]bool{"admin": true},
		Video: map[string]bool{"roomAdmin": true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.apiSecret)
}

// post issues one service call. Request and response bodies are JSON; out
// may be nil for calls with no interesting response.
func (c *Client) post(ctx context.Context, path, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}

	token, err := c.mintToken()
	if err != nil {
		return fmt.Errorf("minting token for %s: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode}
		data, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		if readErr == nil {
			_ = json.Unmarshal(data, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

func (c *Client) sip(ctx context.Context, method string, in, out any) error {
	return c.post(ctx, sipServicePath, method, in, out)
}

// ListInboundTrunks returns every inbound trunk the credential can see,
// which is all of them: scope filtering is the caller's job.
func (c *Client) ListInboundTrunks(ctx context.Context) ([]InboundTrunkInfo, error) {
	var res struct {
		Items []InboundTrunkInfo `json:"items"`
	}
	if err := c.sip(ctx, "ListSIPInboundTrunk", struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ListOutboundTrunks returns every outbound trunk.
func (c *Client) ListOutboundTrunks(ctx context.Context) ([]OutboundTrunkInfo, error) {
	var res struct {
		Items []OutboundTrunkInfo `json:"items"`
	}
	if err := c.sip(ctx, "ListSIPOutboundTrunk", struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CreateInboundTrunk stores a new inbound trunk.
func (c *Client) CreateInboundTrunk(ctx context.Context, trunk InboundTrunkInfo) (*InboundTrunkInfo, error) {
	req := struct {
		Trunk InboundTrunkInfo `json:"trunk"`
	}{Trunk: trunk}
	var created InboundTrunkInfo
	if err := c.sip(ctx, "CreateSIPInboundTrunk", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateOutboundTrunk stores a new outbound trunk.
func (c *Client) CreateOutboundTrunk(ctx context.Context, trunk OutboundTrunkInfo) (*OutboundTrunkInfo, error) {
	req := struct {
		Trunk OutboundTrunkInfo `json:"trunk"`
	}{Trunk: trunk}
	var created OutboundTrunkInfo
	if err := c.sip(ctx, "CreateSIPOutboundTrunk", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateInboundTrunk applies a partial update and returns the new state.
func (c *Client) UpdateInboundTrunk(ctx context.Context, trunkID string, update InboundTrunkUpdate) (*InboundTrunkInfo, error) {
	req := struct {
		SIPTrunkID string `json:"sip_trunk_id"`
		InboundTrunkUpdate
	}{SIPTrunkID: trunkID, InboundTrunkUpdate: update}
	var updated InboundTrunkInfo
	if err := c.sip(ctx, "UpdateSIPInboundTrunk", req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateOutboundTrunk applies a partial update and returns the new state.
func (c *Client) UpdateOutboundTrunk(ctx context.Context, trunkID string, update OutboundTrunkUpdate) (*OutboundTrunkInfo, error) {
	req := struct {
		SIPTrunkID string `json:"sip_trunk_id"`
		OutboundTrunkUpdate
	}{SIPTrunkID: trunkID, OutboundTrunkUpdate: update}
	var updated OutboundTrunkInfo
	if err := c.sip(ctx, "UpdateSIPOutboundTrunk", req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTrunk removes a trunk of either kind.
func (c *Client) DeleteTrunk(ctx context.Context, trunkID string) error {
	req := struct {
		SIPTrunkID string `json:"sip_trunk_id"`
	}{SIPTrunkID: trunkID}
	return c.sip(ctx, "DeleteSIPTrunk", req, nil)
}

// ListDispatchRules returns every dispatch rule.
func (c *Client) ListDispatchRules(ctx context.Context) ([]DispatchRuleInfo, error) {
	var res struct {
		Items []DispatchRuleInfo `json:"items"`
	}
	if err := c.sip(ctx, "ListSIPDispatchRule", struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CreateDispatchRule stores a new dispatch rule. The gateway's create call
// accepts the direct and individual variants only; callee must be patched
// in afterwards via UpdateDispatchRule (see internal/telephony).
func (c *Client) CreateDispatchRule(ctx context.Context, rule DispatchRuleInfo) (*DispatchRuleInfo, error) {
	req := struct {
		Rule DispatchRuleInfo `json:"rule"`
	}{Rule: rule}
	var created DispatchRuleInfo
	if err := c.sip(ctx, "CreateSIPDispatchRule", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateDispatchRule applies a partial update and returns the new state.
func (c *Client) UpdateDispatchRule(ctx context.Context, ruleID string, update DispatchRuleUpdate) (*DispatchRuleInfo, error) {
	req := struct {
		SIPDispatchRuleID string `json:"sip_dispatch_rule_id"`
		DispatchRuleUpdate
	}{SIPDispatchRuleID: ruleID, DispatchRuleUpdate: update}
	var updated DispatchRuleInfo
	if err := c.sip(ctx, "UpdateSIPDispatchRule", req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDispatchRule removes a dispatch rule.
func (c *Client) DeleteDispatchRule(ctx context.Context, ruleID string) error {
	req := struct {
		SIPDispatchRuleID string `json:"sip_dispatch_rule_id"`
	}{SIPDispatchRuleID: ruleID}
	return c.sip(ctx, "DeleteSIPDispatchRule", req, nil)
}

// CreateParticipant asks the gateway to originate an outbound SIP call.
func (c *Client) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*ParticipantInfo, error) {
	var created ParticipantInfo
	if err := c.sip(ctx, "CreateSIPParticipant", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RemoveParticipant kicks a participant out of a room. Used for call
// teardown; callers treat failures as best-effort.
func (c *Client) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	req := struct {
		Room     string `json:"room"`
		Identity string `json:"identity"`
	}{Room: roomName, Identity: identity}
	return c.post(ctx, roomServicePath, "RemoveParticipant", req, nil)
}
