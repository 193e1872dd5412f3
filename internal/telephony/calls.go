package telephony

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceops/voiceops/internal/database"
	"github.com/voiceops/voiceops/internal/database/models"
	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/scope"
)

// List pagination bounds. Out-of-range requests clamp instead of erroring.
const (
	callListDefaultLimit = 50
	callListMaxLimit     = 200
)

// Call is the tenant-facing view of a ledger record.
type Call struct {
	ID                  string     `json:"id"`
	CallID              string     `json:"call_id"`
	FromNumber          string     `json:"from_number,omitempty"`
	ToNumber            string     `json:"to_number"`
	Direction           string     `json:"direction"`
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	DurationSeconds     int        `json:"duration_seconds"`
	Status              string     `json:"status"`
	TrunkID             string     `json:"trunk_id"`
	RoomName            string     `json:"room_name"`
	ParticipantIdentity string     `json:"participant_identity,omitempty"`
	ProjectID           string     `json:"project_id,omitempty"`
}

func mapCall(rec models.CallRecord) Call {
	return Call{
		ID:                  rec.ID,
		CallID:              rec.CallID,
		FromNumber:          rec.FromNumber,
		ToNumber:            rec.ToNumber,
		Direction:           rec.Direction,
		StartedAt:           rec.StartedAt,
		EndedAt:             rec.EndedAt,
		DurationSeconds:     rec.DurationSeconds,
		Status:              rec.Status,
		TrunkID:             rec.TrunkID,
		RoomName:            rec.RoomName,
		ParticipantIdentity: rec.ParticipantIdentity,
		ProjectID:           rec.ProjectID,
	}
}

// CallService originates outbound calls through the gateway and owns the
// local ledger of call lifecycle state. The gateway forgets a call the
// moment it ends; the ledger is the only durable record.
type CallService struct {
	gw   Gateway
	repo database.CallRecordRepository
	now  func() time.Time
}

func NewCallService(gw Gateway, repo database.CallRecordRepository) *CallService {
	return &CallService{gw: gw, repo: repo, now: time.Now}
}

// StartOutboundInput describes an outbound call to place.
type StartOutboundInput struct {
	TrunkID             string
	ToNumber            string
	FromNumber          string
	RoomName            string // optional; a fresh room is generated when empty
	ParticipantIdentity string // optional
	ParticipantName     string // optional
}

// StartOutbound places a call through a scoped trunk and records it as
// ringing. Trunk ownership is verified across both trunk kinds before the
// gateway is asked to dial.
func (s *CallService) StartOutbound(ctx context.Context, tenant Tenant, input StartOutboundInput) (*Call, error) {
	trunkID := strings.TrimSpace(input.TrunkID)
	toNumber := strings.TrimSpace(input.ToNumber)
	if trunkID == "" {
		return nil, validationErrorf("trunk_id is required")
	}
	if toNumber == "" {
		return nil, validationErrorf("to_number is required")
	}

	if err := s.verifyTrunk(ctx, tenant, trunkID); err != nil {
		return nil, err
	}

	roomName := strings.TrimSpace(input.RoomName)
	if roomName == "" {
		roomName = "sip-" + uuid.NewString()[:8]
	}
	roomName = scope.RoomName(roomName, tenant.projectOrGlobal())

	identity := strings.TrimSpace(input.ParticipantIdentity)
	if identity == "" {
		identity = "sip-caller-" + uuid.NewString()[:8]
	}

	participant, err := s.gw.CreateParticipant(ctx, gateway.CreateParticipantRequest{
		SIPTrunkID:          trunkID,
		SIPCallTo:           toNumber,
		RoomName:            roomName,
		ParticipantIdentity: identity,
		ParticipantName:     input.ParticipantName,
	})
	if err != nil {
		return nil, err
	}

	started := s.now().UTC()
	rec := &models.CallRecord{
		ID:                  uuid.NewString(),
		CallID:              participant.SIPCallID,
		FromNumber:          strings.TrimSpace(input.FromNumber),
		ToNumber:            toNumber,
		Direction:           models.DirectionOutbound,
		StartedAt:           started,
		Status:              models.CallStatusRinging,
		TrunkID:             trunkID,
		RoomName:            participant.RoomName,
		ParticipantIdentity: participant.ParticipantIdentity,
		ProjectID:           tenant.ProjectID,
		Metadata:            scope.Encode(tenant.tag("")),
		CreatedAt:           started,
	}
	if rec.RoomName == "" {
		rec.RoomName = roomName
	}
	if rec.ParticipantIdentity == "" {
		rec.ParticipantIdentity = identity
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		// The call is live at the gateway even though the ledger write
		// failed; surface the error rather than hiding a dialing call.
		slog.Error("call placed but ledger insert failed",
			"call_id", rec.CallID, "room", rec.RoomName, "error", err)
		return nil, err
	}

	call := mapCall(*rec)
	slog.Info("outbound call started",
		"call_id", call.CallID, "trunk_id", trunkID, "room", call.RoomName, "owner", tenant.OwnerID)
	return &call, nil
}

// MarkActive transitions a ringing call to active, typically driven by a
// gateway webhook or a poll noticing the participant joined. Calls already
// active or ended are left alone and returned as-is.
func (s *CallService) MarkActive(ctx context.Context, tenant Tenant, idOrCallID string) (*Call, error) {
	rec, err := s.getScoped(ctx, tenant, idOrCallID)
	if err != nil {
		return nil, err
	}
	changed, err := s.repo.MarkActive(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		rec.Status = models.CallStatusActive
		slog.Info("call active", "call_id", rec.CallID, "owner", tenant.OwnerID)
	}
	call := mapCall(*rec)
	return &call, nil
}

// End terminates a call: the gateway participant is removed best-effort,
// then the ledger row is closed with its final duration. Ending an already
// ended call changes nothing and returns the record unchanged, so retried
// requests are safe.
func (s *CallService) End(ctx context.Context, tenant Tenant, idOrCallID string) (*Call, error) {
	rec, err := s.getScoped(ctx, tenant, idOrCallID)
	if err != nil {
		return nil, err
	}

	if rec.Status != models.CallStatusEnded {
		if rec.RoomName != "" && rec.ParticipantIdentity != "" {
			if err := s.gw.RemoveParticipant(ctx, rec.RoomName, rec.ParticipantIdentity); err != nil {
				// Best effort: the participant may have hung up already,
				// in which case the gateway reports it missing.
				slog.Warn("participant removal failed",
					"call_id", rec.CallID, "room", rec.RoomName, "error", err)
			}
		}

		endedAt := s.now().UTC()
		duration := int(endedAt.Sub(rec.StartedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
		changed, err := s.repo.End(ctx, rec.ID, endedAt, duration)
		if err != nil {
			return nil, err
		}
		if changed {
			rec.Status = models.CallStatusEnded
			rec.EndedAt = &endedAt
			rec.DurationSeconds = duration
			slog.Info("call ended",
				"call_id", rec.CallID, "duration_seconds", duration, "owner", tenant.OwnerID)
		}
	}

	call := mapCall(*rec)
	return &call, nil
}

// Get returns a single scoped call by ledger id or gateway call id.
func (s *CallService) Get(ctx context.Context, tenant Tenant, idOrCallID string) (*Call, error) {
	rec, err := s.getScoped(ctx, tenant, idOrCallID)
	if err != nil {
		return nil, err
	}
	call := mapCall(*rec)
	return &call, nil
}

// List returns the tenant's calls newest-first. The limit clamps to
// [1, 200] and defaults to 50 when unset.
func (s *CallService) List(ctx context.Context, tenant Tenant, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = callListDefaultLimit
	}
	if limit > callListMaxLimit {
		limit = callListMaxLimit
	}
	records, err := s.repo.List(ctx, database.CallRecordFilter{
		OwnerMarker: scope.OwnerMarker(tenant.OwnerID),
		ProjectID:   tenant.ProjectID,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	calls := make([]Call, 0, len(records))
	for _, rec := range records {
		calls = append(calls, mapCall(rec))
	}
	return calls, nil
}

func (s *CallService) getScoped(ctx context.Context, tenant Tenant, idOrCallID string) (*models.CallRecord, error) {
	rec, err := s.repo.GetScoped(ctx, idOrCallID, database.CallRecordFilter{
		OwnerMarker: scope.OwnerMarker(tenant.OwnerID),
		ProjectID:   tenant.ProjectID,
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// verifyTrunk confirms the trunk id exists in the tenant's scope, in either
// trunk kind. Dialing is allowed through inbound trunks too when the vendor
// accepts it; the gateway is the final arbiter.
func (s *CallService) verifyTrunk(ctx context.Context, tenant Tenant, trunkID string) error {
	outbound, err := s.gw.ListOutboundTrunks(ctx)
	if err != nil {
		return err
	}
	for _, t := range outbound {
		if t.SIPTrunkID == trunkID && scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			return nil
		}
	}
	inbound, err := s.gw.ListInboundTrunks(ctx)
	if err != nil {
		return err
	}
	for _, t := range inbound {
		if t.SIPTrunkID == trunkID && scope.Matches(t.Metadata, tenant.OwnerID, tenant.ProjectID) {
			return nil
		}
	}
	return ErrNotFound
}
