package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"creditline/internal/domain"
	"creditline/internal/workflow"
)

func registerNotifications(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Caller's notifications, newest first",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit"`
	}) (*struct {
		Body NotificationListResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, actorID, input.Unread, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NotificationListResponse `json:"body"`
		}{Body: NotificationListResponse{Notifications: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark a notification read",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, actorID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "read"}}, nil
	})
}

func registerActors(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body ActorListResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
			return nil, err
		}
		actors, err := e.Repo.ListActors(ctx, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorListResponse `json:"body"`
		}{Body: ActorListResponse{Actors: actors}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-actor",
		Method:      http.MethodPut,
		Path:        "/actors/{id}",
		Summary:     "Create or update an actor",
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpsertActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
			return nil, err
		}
		if !domain.ValidRole(input.Body.Role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid role", map[string]any{"role": string(input.Body.Role)})
		}
		active := true
		if input.Body.Active != nil {
			active = *input.Body.Active
		}
		actor, err := e.Repo.UpsertActor(ctx, domain.Actor{
			ID:       input.ID,
			FullName: input.Body.FullName,
			Email:    input.Body.Email,
			Role:     input.Body.Role,
			Active:   active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: actor}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-actor-role",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/role",
		Summary:     "Reassign an actor's role",
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
			return nil, err
		}
		if !domain.ValidRole(input.Body.Role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid role", map[string]any{"role": string(input.Body.Role)})
		}
		if err := e.Repo.SetActorRole(ctx, input.ID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		actor, err := e.Repo.GetActor(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: actor}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-actor",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/deactivate",
		Summary:     "Deactivate an actor",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return setActive(ctx, e, input.ID, false)
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-actor",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/activate",
		Summary:     "Reactivate an actor",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return setActive(ctx, e, input.ID, true)
	})
}

func setActive(ctx context.Context, e workflow.Engine, id string, active bool) (*struct {
	Body map[string]string `json:"body"`
}, error) {
	if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := e.Repo.SetActorActive(ctx, id, active); err != nil {
		return nil, handleError(err)
	}
	status := "inactive"
	if active {
		status = "active"
	}
	return &struct {
		Body map[string]string `json:"body"`
	}{Body: map[string]string{"status": status}}, nil
}

func registerAPIKeys(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Mint an API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := actorID
		if input.Body.ActorID != "" && input.Body.ActorID != actorID {
			if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
				return nil, err
			}
			target = input.Body.ActorID
		}
		key, secret, err := e.Repo.CreateAPIKey(ctx, target, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{Key: key, Secret: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeyListResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyListResponse `json:"body"`
		}{Body: APIKeyListResponse{Keys: keys}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke an API key",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.ID {
				owned = true
				break
			}
		}
		if !owned {
			if _, err := requireRole(ctx, e, domain.RoleSuperAdmin); err != nil {
				return nil, err
			}
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "revoked"}}, nil
	})
}
