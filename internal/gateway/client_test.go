package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

func TestNewClientSchemeRewrite(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"wss://gw.example.com", "https://gw.example.com"},
		{"ws://gw.example.com:7880", "http://gw.example.com:7880"},
		{"https://gw.example.com/", "https://gw.example.com"},
		{"http://localhost:7880", "http://localhost:7880"},
	}
	for _, c := range cases {
		client := NewClient(c.in, "key", "secret")
		if client.baseURL != c.want {
			t.Errorf("NewClient(%q).baseURL = %q, want %q", c.in, client.baseURL, c.want)
		}
	}
}

func TestClientRequestShape(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"sip_trunk_id": "ST_1", "name": "t1"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "mykey", "mysecret")
	trunks, err := client.ListInboundTrunks(context.Background())
	if err != nil {
		t.Fatalf("ListInboundTrunks() error: %v", err)
	}
	if len(trunks) != 1 || trunks[0].SIPTrunkID != "ST_1" {
		t.Fatalf("trunks = %+v", trunks)
	}

	if gotPath != "/twirp/rtc.SIP/ListSIPInboundTrunk" {
		t.Errorf("path = %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("authorization = %q", gotAuth)
	}

	// The bearer token must be an HS256 JWT signed with the API secret and
	// issued by the API key.
	claims := &grantClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(gotAuth, "Bearer "), claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte("mysecret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Issuer != "mykey" {
		t.Errorf("issuer = %q, want mykey", claims.Issuer)
	}
	if !claims.SIP["admin"] {
		t.Error("token missing sip admin grant")
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"code": "resource_exhausted", "msg": "rate limited"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", "secret")
	_, err := client.ListDispatchRules(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Code != "resource_exhausted" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDispatchRuleUnionDisjoint(t *testing.T) {
	payloads := map[string]string{
		"direct":     `{"sip_dispatch_rule_id":"SDR_1","rule":{"dispatch_rule_direct":{"room_name":"ops"}}}`,
		"individual": `{"sip_dispatch_rule_id":"SDR_2","rule":{"dispatch_rule_individual":{"room_prefix":"in-"}}}`,
		"callee":     `{"sip_dispatch_rule_id":"SDR_3","rule":{"dispatch_rule_callee":{"room_prefix":"in-","randomize":true}}}`,
	}

	for kind, payload := range payloads {
		var info DispatchRuleInfo
		if err := json.Unmarshal([]byte(payload), &info); err != nil {
			t.Fatalf("%s: unmarshal: %v", kind, err)
		}
		populated := 0
		if info.Rule.Direct != nil {
			populated++
		}
		if info.Rule.Individual != nil {
			populated++
		}
		if info.Rule.Callee != nil {
			populated++
		}
		if populated != 1 {
			t.Errorf("%s: %d union cases populated, want exactly 1", kind, populated)
		}
	}
}
