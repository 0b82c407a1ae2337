package domain

// Role is the single role an actor holds. Exactly one role per actor;
// reassignment is an administrative operation, never part of a workflow
// transition.
type Role string

const (
	RoleUnknown           Role = ""
	RoleClient            Role = "client"
	RoleAccountManager    Role = "account_manager"
	RoleCreditAnalyst     Role = "credit_analyst"
	RoleRiskCommitteeLead Role = "risk_committee_lead"
	RoleBackOfficeOfficer Role = "back_office_officer"
	RoleSuperAdmin        Role = "super_admin"
)

// StaffRoles are the roles that can appear as a broadcast target for
// notifications.
var StaffRoles = []Role{
	RoleAccountManager,
	RoleCreditAnalyst,
	RoleRiskCommitteeLead,
	RoleBackOfficeOfficer,
	RoleSuperAdmin,
}

func ValidRole(r Role) bool {
	if r == RoleClient {
		return true
	}
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// AgentStatus is the authoritative internal workflow state of a dossier.
// It alone determines which transitions are legal next.
type AgentStatus string

const (
	AgentNew                  AgentStatus = "new"
	AgentSupervisorReview     AgentStatus = "supervisor_review"
	AgentTransmittedToAnalyst AgentStatus = "transmitted_to_analyst"
	AgentUnderAnalysis        AgentStatus = "under_analysis"
	AgentCommitteeReview      AgentStatus = "committee_review"
	AgentExecutivePending     AgentStatus = "executive_pending"
	AgentApproved             AgentStatus = "approved"
	AgentFundsReleased        AgentStatus = "funds_released"
	AgentRejected             AgentStatus = "rejected"
)

// Terminal reports whether no further workflow transition may move the
// dossier. Re-opening a terminal dossier is an administrative operation
// outside the workflow engine.
func (s AgentStatus) Terminal() bool {
	return s == AgentFundsReleased || s == AgentRejected
}

// ClientStatus is the client-facing projection of a dossier's state. It is
// derived from each transition and carries no authority: nothing may consult
// it to decide whether an action is legal.
type ClientStatus string

const (
	ClientPending    ClientStatus = "pending"
	ClientInProgress ClientStatus = "in_progress"
	ClientReturned   ClientStatus = "returned"
	ClientCompleted  ClientStatus = "completed"
)

// JournalKind tags a journal entry with the kind of action that produced it.
type JournalKind string

const (
	KindCreation       JournalKind = "creation"
	KindTransition     JournalKind = "transition"
	KindReturn         JournalKind = "return"
	KindReturnToClient JournalKind = "return_to_client"
	KindApproval       JournalKind = "approval"
	KindRejection      JournalKind = "rejection"
	KindFundsRelease   JournalKind = "funds_release"
)

// Dossier is one credit application tracked end to end.
type Dossier struct {
	Reference       string       `json:"reference"`
	ClientID        string       `json:"client_id"`
	Product         string       `json:"product"`
	Amount          int64        `json:"amount"`
	DurationMonths  int          `json:"duration_months"`
	AgentStatus     AgentStatus  `json:"agent_status"`
	ClientStatus    ClientStatus `json:"client_status"`
	AssignedActorID *string      `json:"assigned_actor_id,omitempty"`
	Archived        bool         `json:"archived"`
	SubmittedAt     string       `json:"submitted_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

// JournalEntry is one immutable line of a dossier's audit trail. FromStatus
// is nil only on the creation entry.
type JournalEntry struct {
	ID         int64          `json:"id"`
	Reference  string         `json:"reference"`
	Kind       JournalKind    `json:"kind"`
	FromStatus *AgentStatus   `json:"from_status,omitempty"`
	ToStatus   AgentStatus    `json:"to_status"`
	ActorID    string         `json:"actor_id"`
	Comment    string         `json:"comment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

// NotificationRequest is the value the workflow engine hands to the
// dispatcher. Exactly one of TargetActorID / TargetRole is set.
type NotificationRequest struct {
	Reference     string `json:"reference,omitempty"`
	TargetActorID string `json:"target_actor_id,omitempty"`
	TargetRole    Role   `json:"target_role,omitempty"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	Email         bool   `json:"email"`
}

// Notification is a persisted in-app notification for one actor.
type Notification struct {
	ID        int64   `json:"id"`
	ActorID   string  `json:"actor_id"`
	Reference string  `json:"reference,omitempty"`
	Kind      string  `json:"kind"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	Email     bool    `json:"email"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
}

// Actor is a profile known to the role registry.
type Actor struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
