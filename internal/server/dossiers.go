package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"creditline/internal/domain"
	"creditline/internal/repo"
	"creditline/internal/workflow"
)

func registerDossiers(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-dossier",
		Method:        http.MethodPost,
		Path:          "/dossiers",
		Summary:       "Submit a credit application",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDossierRequest `json:"body"`
	}) (*struct {
		Body domain.Dossier `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		clientID := actorID
		if input.Body.ClientID != "" && input.Body.ClientID != actorID {
			if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
				return nil, err
			}
			clientID = input.Body.ClientID
		}
		d, err := e.CreateDossier(ctx, workflow.CreateDossierOptions{
			ClientID:       clientID,
			Product:        input.Body.Product,
			Amount:         input.Body.Amount,
			DurationMonths: input.Body.DurationMonths,
		})
		if err != nil {
			intakesTotal.WithLabelValues("rejected").Inc()
			return nil, handleError(err)
		}
		intakesTotal.WithLabelValues("accepted").Inc()
		return &struct {
			Body domain.Dossier `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dossier",
		Method:      http.MethodGet,
		Path:        "/dossiers/{reference}",
		Summary:     "Fetch one dossier",
	}, func(ctx context.Context, input *struct {
		Reference string `path:"reference"`
	}) (*struct {
		Body domain.Dossier `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDossier(ctx, input.Reference)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dossier `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dossiers",
		Method:      http.MethodGet,
		Path:        "/dossiers",
		Summary:     "List dossiers",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Status   string `query:"status"`
		Product  string `query:"product"`
		Assignee string `query:"assignee"`
		Archived string `query:"archived"`
		After    string `query:"after"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body DossierListResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		filter := repo.DossierFilter{
			ClientID:       input.ClientID,
			AgentStatus:    domain.AgentStatus(input.Status),
			Product:        input.Product,
			AssigneeID:     input.Assignee,
			AfterReference: input.After,
			Limit:          input.Limit,
		}
		if input.Archived != "" {
			archived := input.Archived == "true"
			filter.Archived = &archived
		}
		dossiers, err := e.Repo.ListDossiers(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := DossierListResponse{Dossiers: dossiers}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		if len(dossiers) == limit {
			resp.NextAfter = dossiers[len(dossiers)-1].Reference
		}
		return &struct {
			Body DossierListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-dossier",
		Method:      http.MethodPost,
		Path:        "/dossiers/{reference}/archive",
		Summary:     "Archive a dossier",
	}, func(ctx context.Context, input *struct {
		Reference string `path:"reference"`
	}) (*struct {
		Body domain.Dossier `json:"body"`
	}, error) {
		return setArchived(ctx, e, input.Reference, true)
	})

	huma.Register(api, huma.Operation{
		OperationID: "unarchive-dossier",
		Method:      http.MethodPost,
		Path:        "/dossiers/{reference}/unarchive",
		Summary:     "Restore an archived dossier",
	}, func(ctx context.Context, input *struct {
		Reference string `path:"reference"`
	}) (*struct {
		Body domain.Dossier `json:"body"`
	}, error) {
		return setArchived(ctx, e, input.Reference, false)
	})
}

func setArchived(ctx context.Context, e workflow.Engine, reference string, archived bool) (*struct {
	Body domain.Dossier `json:"body"`
}, error) {
	if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := e.Repo.SetDossierArchived(ctx, reference, archived); err != nil {
		return nil, handleError(err)
	}
	d, err := e.Repo.GetDossier(ctx, reference)
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body domain.Dossier `json:"body"`
	}{Body: d}, nil
}

func registerActions(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "apply-action",
		Method:      http.MethodPost,
		Path:        "/dossiers/{reference}/actions",
		Summary:     "Apply a workflow action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Reference string        `path:"reference"`
		Body      ActionRequest `json:"body"`
	}) (*struct {
		Body workflow.TransitionOutcome `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Action == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "action is required", nil)
		}
		out, err := e.Apply(ctx, workflow.ApplyOptions{
			ActorID:   actorID,
			Reference: input.Reference,
			Action:    workflow.Action(input.Body.Action),
			Comment:   input.Body.Comment,
		})
		transitionsTotal.WithLabelValues(input.Body.Action, transitionOutcomeLabel(err)).Inc()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body workflow.TransitionOutcome `json:"body"`
		}{Body: out}, nil
	})
}

func registerJournal(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-journal",
		Method:      http.MethodGet,
		Path:        "/dossiers/{reference}/journal",
		Summary:     "Dossier audit trail",
	}, func(ctx context.Context, input *struct {
		Reference string `path:"reference"`
		Order     string `query:"order" enum:"oldest,newest" default:"oldest"`
	}) (*struct {
		Body JournalResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetDossier(ctx, input.Reference); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.JournalEntries(ctx, input.Reference, input.Order == "newest")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JournalResponse `json:"body"`
		}{Body: JournalResponse{Reference: input.Reference, Entries: entries}}, nil
	})
}
