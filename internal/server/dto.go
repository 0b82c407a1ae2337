package server

import "creditline/internal/domain"

type CreateDossierRequest struct {
	// ClientID is only honored for super admins; other callers create
	// dossiers for themselves.
	ClientID       string `json:"client_id,omitempty"`
	Product        string `json:"product"`
	Amount         int64  `json:"amount" minimum:"1"`
	DurationMonths int    `json:"duration_months" minimum:"1"`
}

type ActionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

type DossierListResponse struct {
	Dossiers []domain.Dossier `json:"dossiers"`
	// NextAfter is the cursor for the following page; empty on the last page.
	NextAfter string `json:"next_after,omitempty"`
}

type JournalResponse struct {
	Reference string                `json:"reference"`
	Entries   []domain.JournalEntry `json:"entries"`
}

type NotificationListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

type ActorListResponse struct {
	Actors []domain.Actor `json:"actors"`
}

type UpsertActorRequest struct {
	FullName string      `json:"full_name,omitempty"`
	Email    string      `json:"email,omitempty"`
	Role     domain.Role `json:"role"`
	Active   *bool       `json:"active,omitempty"`
}

type SetRoleRequest struct {
	Role domain.Role `json:"role"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
	// ActorID lets a super admin mint a key for another actor.
	ActorID string `json:"actor_id,omitempty"`
}

type CreateAPIKeyResponse struct {
	Key domain.APIKey `json:"key"`
	// Secret is shown exactly once.
	Secret string `json:"secret"`
}

type APIKeyListResponse struct {
	Keys []domain.APIKey `json:"keys"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
}
