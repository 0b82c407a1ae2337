package workflow

import "creditline/internal/domain"

// Action is a workflow action name as submitted by the calling layer.
type Action string

const (
	ActionForwardToAnalyst   Action = "forward_to_analyst"
	ActionReturnToClient     Action = "return_to_client"
	ActionForwardToCommittee Action = "forward_to_committee"
	ActionReturnToManager    Action = "return_to_manager"
	ActionApprove            Action = "approve"
	ActionReject             Action = "reject"
	ActionReleaseFunds       Action = "release_funds"
)

// Rule is one row of the transition table: who may do what, from which
// statuses, and what the dossier and journal look like afterwards.
type Rule struct {
	Role   domain.Role
	Action Action
	From   []domain.AgentStatus
	// Next is ignored when KeepAgentStatus is set; return_to_client leaves
	// the agent status untouched and only moves the client-facing status.
	Next            domain.AgentStatus
	KeepAgentStatus bool
	NextClient      domain.ClientStatus
	Kind            domain.JournalKind
	RequireReason   bool
	// NotifyRole, when set, broadcasts a notification to every active actor
	// holding that role in addition to the dossier's owning client.
	NotifyRole domain.Role
}

// rules is the closed-world policy: any (role, action, status) triple not
// represented here is refused. No other code may encode a transition.
var rules = []Rule{
	{
		Role:       domain.RoleAccountManager,
		Action:     ActionForwardToAnalyst,
		From:       []domain.AgentStatus{domain.AgentNew, domain.AgentSupervisorReview},
		Next:       domain.AgentTransmittedToAnalyst,
		NextClient: domain.ClientInProgress,
		Kind:       domain.KindTransition,
		NotifyRole: domain.RoleCreditAnalyst,
	},
	{
		Role:            domain.RoleAccountManager,
		Action:          ActionReturnToClient,
		From:            []domain.AgentStatus{domain.AgentNew, domain.AgentSupervisorReview},
		KeepAgentStatus: true,
		NextClient:      domain.ClientReturned,
		Kind:            domain.KindReturnToClient,
		RequireReason:   true,
	},
	{
		Role:       domain.RoleCreditAnalyst,
		Action:     ActionForwardToCommittee,
		From:       []domain.AgentStatus{domain.AgentTransmittedToAnalyst, domain.AgentUnderAnalysis},
		Next:       domain.AgentCommitteeReview,
		NextClient: domain.ClientInProgress,
		Kind:       domain.KindTransition,
		NotifyRole: domain.RoleRiskCommitteeLead,
	},
	{
		Role:       domain.RoleCreditAnalyst,
		Action:     ActionReturnToManager,
		From:       []domain.AgentStatus{domain.AgentTransmittedToAnalyst, domain.AgentUnderAnalysis},
		Next:       domain.AgentSupervisorReview,
		NextClient: domain.ClientInProgress,
		Kind:       domain.KindReturn,
		NotifyRole: domain.RoleAccountManager,
	},
	{
		Role:       domain.RoleRiskCommitteeLead,
		Action:     ActionApprove,
		From:       []domain.AgentStatus{domain.AgentCommitteeReview, domain.AgentExecutivePending},
		Next:       domain.AgentApproved,
		NextClient: domain.ClientInProgress,
		Kind:       domain.KindApproval,
		NotifyRole: domain.RoleBackOfficeOfficer,
	},
	{
		Role:   domain.RoleRiskCommitteeLead,
		Action: ActionReject,
		From: []domain.AgentStatus{
			domain.AgentCommitteeReview,
			domain.AgentExecutivePending,
			domain.AgentTransmittedToAnalyst,
			domain.AgentUnderAnalysis,
		},
		Next:       domain.AgentRejected,
		NextClient: domain.ClientReturned,
		Kind:       domain.KindRejection,
	},
	{
		Role:       domain.RoleBackOfficeOfficer,
		Action:     ActionReleaseFunds,
		From:       []domain.AgentStatus{domain.AgentApproved},
		Next:       domain.AgentFundsReleased,
		NextClient: domain.ClientCompleted,
		Kind:       domain.KindFundsRelease,
	},
}

type ruleKey struct {
	role   domain.Role
	action Action
}

var ruleIndex = func() map[ruleKey]Rule {
	idx := make(map[ruleKey]Rule, len(rules))
	for _, r := range rules {
		idx[ruleKey{r.Role, r.Action}] = r
	}
	return idx
}()

// Lookup returns the rule for a role/action pair, if one exists.
func Lookup(role domain.Role, action Action) (Rule, bool) {
	r, ok := ruleIndex[ruleKey{role, action}]
	return r, ok
}

// KnownAction reports whether any rule at all mentions the action. It lets
// the engine distinguish UnknownAction from Unauthorized for diagnostics.
func KnownAction(action Action) bool {
	for _, r := range rules {
		if r.Action == action {
			return true
		}
	}
	return false
}

// Actions lists every action the table knows, in table order.
func Actions() []Action {
	seen := map[Action]bool{}
	var out []Action
	for _, r := range rules {
		if !seen[r.Action] {
			seen[r.Action] = true
			out = append(out, r.Action)
		}
	}
	return out
}

// Rules returns a copy of the full table, for inspection and tests.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Allows reports whether the rule permits leaving the given status.
func (r Rule) Allows(status domain.AgentStatus) bool {
	for _, s := range r.From {
		if s == status {
			return true
		}
	}
	return false
}

// ResultFor returns the agent status the rule produces when applied from the
// given status.
func (r Rule) ResultFor(from domain.AgentStatus) domain.AgentStatus {
	if r.KeepAgentStatus {
		return from
	}
	return r.Next
}
