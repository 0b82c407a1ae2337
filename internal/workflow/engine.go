// Package workflow is the dossier state machine. The rule table in rules.go
// is the only source of transition policy; the engine here enforces it,
// journals every mutation in the same transaction, and hands notification
// requests to the dispatcher after commit.
package workflow

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"creditline/internal/config"
	"creditline/internal/domain"
	"creditline/internal/journal"
	"creditline/internal/repo"
)

// Dispatcher delivers one notification request. Delivery is best effort:
// a failed Send is logged and never unwinds a committed transition.
type Dispatcher interface {
	Send(ctx context.Context, req domain.NotificationRequest) (int, error)
}

type Engine struct {
	DB         *sql.DB
	Repo       *repo.Repo
	Journal    journal.Writer
	Registry   RoleRegistry
	Dispatcher Dispatcher
	Config     *config.Config
	Log        *zap.Logger
	Now        func() time.Time
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// ApplyOptions names a single workflow action attempt.
type ApplyOptions struct {
	ActorID   string
	Reference string
	Action    Action
	Comment   string
}

// TransitionOutcome reports a committed transition. Notified is the count of
// notifications actually delivered, which is best effort and may be lower
// than the target set.
type TransitionOutcome struct {
	Dossier  domain.Dossier      `json:"dossier"`
	Entry    domain.JournalEntry `json:"entry"`
	Notified int                 `json:"notified"`
}

// Apply attempts one action against one dossier. The status mutation and the
// journal entry commit atomically; refusals leave both untouched.
func (e Engine) Apply(ctx context.Context, opts ApplyOptions) (TransitionOutcome, error) {
	var out TransitionOutcome

	role, err := e.Registry.RoleOf(ctx, opts.ActorID)
	if err != nil {
		return out, fmt.Errorf("resolve role of %s: %w", opts.ActorID, err)
	}
	rule, ok := Lookup(role, opts.Action)
	if !ok {
		if !KnownAction(opts.Action) {
			return out, UnknownActionError{Action: opts.Action}
		}
		return out, UnauthorizedError{ActorID: opts.ActorID, Role: role, Action: opts.Action}
	}

	reason := strings.TrimSpace(opts.Comment)
	if rule.RequireReason && reason == "" {
		return out, MissingReasonError{Action: opts.Action}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDossierTx(ctx, tx, opts.Reference)
	if err != nil {
		return out, err
	}
	if d.AgentStatus.Terminal() || !rule.Allows(d.AgentStatus) {
		return out, IllegalStateError{Action: opts.Action, Status: d.AgentStatus}
	}

	from := d.AgentStatus
	nextAgent := rule.ResultFor(from)
	priorClient := d.ClientStatus

	applied, err := e.Repo.UpdateDossierTransitionTx(ctx, tx, d.Reference, from, nextAgent, rule.NextClient, opts.ActorID)
	if err != nil {
		return out, err
	}
	if !applied {
		return out, ConflictError{Reference: d.Reference, Expected: from}
	}

	metadata := map[string]any{
		"role":                string(role),
		"prior_client_status": string(priorClient),
		"new_client_status":   string(rule.NextClient),
	}
	if rule.RequireReason {
		metadata["reason"] = reason
	}
	entry, err := e.Journal.Append(ctx, tx, domain.JournalEntry{
		Reference:  d.Reference,
		Kind:       rule.Kind,
		FromStatus: &from,
		ToStatus:   nextAgent,
		ActorID:    opts.ActorID,
		Comment:    opts.Comment,
		Metadata:   metadata,
	})
	if err != nil {
		return out, err
	}

	if err := tx.Commit(); err != nil {
		return out, err
	}

	d.AgentStatus = nextAgent
	d.ClientStatus = rule.NextClient
	d.AssignedActorID = &opts.ActorID
	d.UpdatedAt = entry.CreatedAt
	out.Dossier = d
	out.Entry = entry
	out.Notified = e.notifyAfterTransition(ctx, d, rule, opts, reason)
	return out, nil
}

// notifyAfterTransition fans out post-commit notifications: the role the rule
// names, plus the dossier's owning client. Failures are logged and swallowed.
func (e Engine) notifyAfterTransition(ctx context.Context, d domain.Dossier, rule Rule, opts ApplyOptions, reason string) int {
	if e.Dispatcher == nil {
		return 0
	}
	delivered := 0
	kind := "dossier." + string(rule.Kind)

	if rule.NotifyRole != domain.RoleUnknown {
		n, err := e.Dispatcher.Send(ctx, domain.NotificationRequest{
			Reference:  d.Reference,
			TargetRole: rule.NotifyRole,
			Kind:       kind,
			Title:      fmt.Sprintf("Dossier %s awaiting %s", d.Reference, roleLabel(rule.NotifyRole)),
			Body:       fmt.Sprintf("Dossier %s moved to %s by %s.", d.Reference, d.AgentStatus, opts.ActorID),
		})
		if err != nil {
			e.log().Warn("notification dispatch failed",
				zap.String("reference", d.Reference),
				zap.String("role", string(rule.NotifyRole)),
				zap.Error(err))
		}
		delivered += n
	}

	body := fmt.Sprintf("Your application %s is now %s.", d.Reference, d.ClientStatus)
	if reason != "" {
		body = fmt.Sprintf("Your application %s is now %s: %s", d.Reference, d.ClientStatus, reason)
	}
	n, err := e.Dispatcher.Send(ctx, domain.NotificationRequest{
		Reference:     d.Reference,
		TargetActorID: d.ClientID,
		Kind:          kind,
		Title:         fmt.Sprintf("Update on application %s", d.Reference),
		Body:          body,
		Email:         true,
	})
	if err != nil {
		e.log().Warn("client notification failed",
			zap.String("reference", d.Reference),
			zap.String("client_id", d.ClientID),
			zap.Error(err))
	}
	return delivered + n
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleAccountManager:
		return "account management"
	case domain.RoleCreditAnalyst:
		return "credit analysis"
	case domain.RoleRiskCommitteeLead:
		return "risk committee review"
	case domain.RoleBackOfficeOfficer:
		return "funds release"
	default:
		return string(r)
	}
}

// CreateDossierOptions is the intake payload.
type CreateDossierOptions struct {
	ClientID       string
	Product        string
	Amount         int64
	DurationMonths int
}

// CreateDossier validates intake against the product catalog, mints a
// reference, and records the dossier with its creation journal entry in one
// transaction.
func (e Engine) CreateDossier(ctx context.Context, opts CreateDossierOptions) (domain.Dossier, error) {
	var d domain.Dossier
	if strings.TrimSpace(opts.ClientID) == "" {
		return d, ValidationError{Field: "client_id", Reason: "required"}
	}
	product, ok := e.Config.Product(opts.Product)
	if !ok {
		return d, ValidationError{Field: "product", Reason: fmt.Sprintf("unknown product %q", opts.Product)}
	}
	if opts.Amount < product.MinAmount || opts.Amount > product.MaxAmount {
		return d, ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("must be between %d and %d for %s", product.MinAmount, product.MaxAmount, product.Name),
		}
	}
	if !product.AllowsDuration(opts.DurationMonths) {
		return d, ValidationError{Field: "duration_months", Reason: fmt.Sprintf("not offered for %s", product.Name)}
	}

	now := e.now().UTC().Format(time.RFC3339)
	d = domain.Dossier{
		ClientID:       opts.ClientID,
		Product:        product.Name,
		Amount:         opts.Amount,
		DurationMonths: opts.DurationMonths,
		AgentStatus:    domain.AgentNew,
		ClientStatus:   domain.ClientPending,
		SubmittedAt:    now,
		UpdatedAt:      now,
	}

	// Reference collisions are possible with short random suffixes; retry a
	// few times before falling back to a UUID, which cannot collide in
	// practice.
	for attempt := 0; ; attempt++ {
		if attempt < 5 {
			d.Reference = e.newReference()
		} else {
			d.Reference = "CR-" + uuid.NewString()
		}
		err := e.createDossierOnce(ctx, d)
		if err == nil {
			return d, nil
		}
		if attempt >= 5 || !isUniqueViolation(err) {
			return domain.Dossier{}, err
		}
	}
}

func (e Engine) createDossierOnce(ctx context.Context, d domain.Dossier) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDossierTx(ctx, tx, d); err != nil {
		return err
	}
	_, err = e.Journal.Append(ctx, tx, domain.JournalEntry{
		Reference: d.Reference,
		Kind:      domain.KindCreation,
		ToStatus:  domain.AgentNew,
		ActorID:   d.ClientID,
		Metadata: map[string]any{
			"product":         d.Product,
			"amount":          d.Amount,
			"duration_months": d.DurationMonths,
		},
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if e.Dispatcher != nil {
		if _, err := e.Dispatcher.Send(ctx, domain.NotificationRequest{
			Reference:     d.Reference,
			TargetActorID: d.ClientID,
			Kind:          "dossier.received",
			Title:         fmt.Sprintf("Application %s received", d.Reference),
			Body:          fmt.Sprintf("We received your %s application for %d over %d months.", d.Product, d.Amount, d.DurationMonths),
			Email:         true,
		}); err != nil {
			e.log().Warn("intake notification failed",
				zap.String("reference", d.Reference),
				zap.Error(err))
		}
	}
	return nil
}

func (e Engine) newReference() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "CR-" + uuid.NewString()
	}
	return fmt.Sprintf("CR-%d-%s", e.now().UTC().Year(), hex.EncodeToString(buf))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
