package telephony

import (
	"context"
	"errors"
	"testing"
)

func TestRuleCreateVariants(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)
	ctx := context.Background()
	tenant := Tenant{OwnerID: "alice", ProjectID: "proj-a"}

	direct, err := svc.Create(ctx, tenant, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"ST_1"},
		RoomName: "support",
		Pin:      "1234",
	})
	if err != nil {
		t.Fatal(err)
	}
	if direct.RuleType != RuleTypeDirect || direct.RoomName != "support" || direct.Pin != "1234" {
		t.Fatalf("direct = %+v", direct)
	}
	// The stored room name is namespaced even though the view is bare.
	if got := gw.rules[0].Rule.Direct.RoomName; got != "prj-proj-a-support" {
		t.Fatalf("stored room = %q", got)
	}

	individual, err := svc.Create(ctx, tenant, CreateRuleInput{
		RuleType: RuleTypeIndividual,
		TrunkIDs: []string{"ST_1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if individual.RuleType != RuleTypeIndividual || individual.RoomPrefix != "inbound-" {
		t.Fatalf("individual = %+v", individual)
	}

	callee, err := svc.Create(ctx, tenant, CreateRuleInput{
		RuleType:   RuleTypeCallee,
		TrunkIDs:   []string{"ST_1"},
		RoomPrefix: "line-",
		Randomize:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if callee.RuleType != RuleTypeCallee || callee.RoomPrefix != "line-" || !callee.Randomize {
		t.Fatalf("callee = %+v", callee)
	}
	stored := gw.rules[2].Rule
	if stored.Callee == nil || stored.Individual != nil || stored.Direct != nil {
		t.Fatalf("callee rule not patched to callee variant: %+v", stored)
	}
}

func TestRuleCreateUnknownTypeCoercesToDirect(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)

	rule, err := svc.Create(context.Background(), Tenant{OwnerID: "alice"}, CreateRuleInput{
		RuleType: "broadcast",
		TrunkIDs: []string{"ST_1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rule.RuleType != RuleTypeDirect {
		t.Fatalf("rule_type = %q, want direct", rule.RuleType)
	}
	if rule.RoomName != "default-sip-room" {
		t.Fatalf("room = %q, want default-sip-room", rule.RoomName)
	}
}

func TestRuleCreateRequiresTrunk(t *testing.T) {
	svc := NewRuleService(newFakeGateway())

	_, err := svc.Create(context.Background(), Tenant{OwnerID: "alice"}, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"  "},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRuleCalleePartialFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failRuleUpdate = errUpstream
	svc := NewRuleService(gw)

	_, err := svc.Create(context.Background(), Tenant{OwnerID: "alice"}, CreateRuleInput{
		RuleType: RuleTypeCallee,
		TrunkIDs: []string{"ST_1"},
	})
	var pf *PartialFailure
	if !errors.As(err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", err)
	}
	if pf.RuleID == "" {
		t.Fatal("partial failure carries no rule id")
	}
	if pf.Rule == nil || pf.Rule.RuleType != RuleTypeIndividual {
		t.Fatalf("half-created rule = %+v, want individual form", pf.Rule)
	}
	if !errors.Is(err, errUpstream) {
		t.Fatal("underlying cause not unwrapped")
	}
	// Step one landed: the rule exists at the gateway in individual form.
	if len(gw.rules) != 1 || gw.rules[0].Rule.Individual == nil {
		t.Fatalf("gateway state = %+v", gw.rules)
	}
}

func TestRuleCreateAgentAttribute(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)

	rule, err := svc.Create(context.Background(), Tenant{OwnerID: "alice"}, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"ST_1"},
		AgentID:  "agent-7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rule.AgentID != "agent-7" {
		t.Fatalf("agent_id = %q", rule.AgentID)
	}
	if gw.rules[0].Attributes["agent_id"] != "agent-7" {
		t.Fatalf("stored attributes = %v", gw.rules[0].Attributes)
	}
}

func TestRuleUpdateSameVariantCarriesFields(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)
	ctx := context.Background()
	tenant := Tenant{OwnerID: "alice"}

	created, err := svc.Create(ctx, tenant, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"ST_1"},
		RoomName: "support",
		Pin:      "1234",
	})
	if err != nil {
		t.Fatal(err)
	}

	name := "renamed"
	updated, err := svc.Update(ctx, tenant, created.ID, UpdateRuleInput{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("name = %q", updated.Name)
	}
	if updated.RoomName != "support" || updated.Pin != "1234" {
		t.Fatalf("variant fields lost on unrelated update: %+v", updated)
	}
}

func TestRuleUpdateVariantChangeDropsStaleFields(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)
	ctx := context.Background()
	tenant := Tenant{OwnerID: "alice"}

	created, err := svc.Create(ctx, tenant, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"ST_1"},
		RoomName: "support",
		Pin:      "1234",
	})
	if err != nil {
		t.Fatal(err)
	}

	target := RuleTypeIndividual
	updated, err := svc.Update(ctx, tenant, created.ID, UpdateRuleInput{RuleType: &target})
	if err != nil {
		t.Fatal(err)
	}
	if updated.RuleType != RuleTypeIndividual {
		t.Fatalf("rule_type = %q", updated.RuleType)
	}
	// Direct-case fields must not leak into the new variant.
	if updated.RoomPrefix != "inbound-" {
		t.Fatalf("room_prefix = %q, want default", updated.RoomPrefix)
	}
	if updated.Pin != "" {
		t.Fatalf("pin carried across variant change: %q", updated.Pin)
	}
}

func TestRuleUpdateScopeMiss(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)
	ctx := context.Background()

	created, err := svc.Create(ctx, Tenant{OwnerID: "alice"}, CreateRuleInput{
		RuleType: RuleTypeDirect,
		TrunkIDs: []string{"ST_1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	name := "hijack"
	if _, err := svc.Update(ctx, Tenant{OwnerID: "bob"}, created.ID, UpdateRuleInput{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, Tenant{OwnerID: "bob"}, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v, want ErrNotFound", err)
	}
}

func TestRuleListScoped(t *testing.T) {
	gw := newFakeGateway()
	svc := NewRuleService(gw)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Tenant{OwnerID: "alice", ProjectID: "proj-a"}, CreateRuleInput{
		RuleType: RuleTypeDirect, TrunkIDs: []string{"ST_1"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, Tenant{OwnerID: "bob"}, CreateRuleInput{
		RuleType: RuleTypeIndividual, TrunkIDs: []string{"ST_2"},
	}); err != nil {
		t.Fatal(err)
	}

	rules, err := svc.List(ctx, Tenant{OwnerID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].RuleType != RuleTypeDirect {
		t.Fatalf("alice rules = %+v", rules)
	}
}
