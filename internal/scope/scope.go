// Package scope overlays tenant ownership onto objects stored in the shared
// gateway. The gateway has no native concept of a tenant: the only writable
// field on trunks and dispatch rules is a single opaque metadata string, so
// ownership is encoded there and every list/read is filtered client-side.
package scope

import (
	"encoding/json"
	"strings"
)

// Tag identifies the tenant that owns a gateway object. All fields are
// optional; a zero Tag means the object carries no recognizable ownership.
type Tag struct {
	OwnerID        string
	ProjectID      string
	ClientMetadata string
}

// wireTag is the serialized form. Field order is fixed so Encode is
// byte-stable and substring filters against stored metadata keep working.
type wireTag struct {
	OwnerUserID    *string `json:"owner_user_id"`
	ProjectID      *string `json:"project_id"`
	ClientMetadata *string `json:"client_metadata"`
}

// Encode serializes a tag into the metadata string stored on gateway
// objects. Same input always produces the same bytes. Never fails.
func Encode(tag Tag) string {
	w := wireTag{
		OwnerUserID:    nullable(tag.OwnerID),
		ProjectID:      nullable(tag.ProjectID),
		ClientMetadata: nullable(tag.ClientMetadata),
	}
	b, err := json.Marshal(w)
	if err != nil {
		// Marshal of a struct of string pointers cannot fail.
		return "{}"
	}
	return string(b)
}

// Decode parses a metadata string back into a Tag. Objects created outside
// this system (by hand, or before scoping existed) carry arbitrary metadata;
// anything that does not parse yields an empty tag rather than an error so
// listing never breaks on foreign objects.
func Decode(raw string) Tag {
	if raw == "" {
		return Tag{}
	}
	var w wireTag
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Tag{}
	}
	return Tag{
		OwnerID:        deref(w.OwnerUserID),
		ProjectID:      deref(w.ProjectID),
		ClientMetadata: deref(w.ClientMetadata),
	}
}

// Matches reports whether the object carrying raw metadata belongs to the
// given owner, and to the given project when one is requested. An empty
// projectID matches every project the owner has, which is what
// account-level listings rely on.
func Matches(raw, ownerID, projectID string) bool {
	tag := Decode(raw)
	if tag.OwnerID != ownerID {
		return false
	}
	if projectID != "" && tag.ProjectID != projectID {
		return false
	}
	return true
}

// OwnerMarker returns the substring that appears in every metadata string
// encoded for the given owner. Ledger queries use it as a LIKE pattern so
// scope filtering happens in SQL without re-parsing each row.
func OwnerMarker(ownerID string) string {
	b, _ := json.Marshal(ownerID)
	return `"owner_user_id":` + string(b)
}

// projectPrefix is the room-name namespace for a project.
func projectPrefix(projectID string) string {
	return "prj-" + projectID + "-"
}

// RoomName namespaces a room name by project so rooms from different
// tenants never collide in the gateway's flat room namespace. Already
// prefixed names pass through unchanged.
func RoomName(name, projectID string) string {
	prefix := projectPrefix(projectID)
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// BareRoomName strips the project prefix from a namespaced room name.
func BareRoomName(name, projectID string) string {
	return strings.TrimPrefix(name, projectPrefix(projectID))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
