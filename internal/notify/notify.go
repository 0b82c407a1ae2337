// Package notify stores in-app notifications and optionally mails them out.
// The workflow engine calls it after commit; nothing here may influence
// whether a transition stands.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"creditline/internal/domain"
	"creditline/internal/repo"
)

// Mailer sends one email. Implementations live at the edges; tests use fakes.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// Service fans a notification request out to its target actors. A role
// target reaches every active actor holding the role; an actor target
// reaches exactly that actor.
type Service struct {
	Repo   *repo.Repo
	Mailer Mailer
	Log    *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Send resolves the target set, stores one in-app notification per actor, and
// mails those with a known address when the request asks for email. It
// returns the number of in-app notifications stored. A mail failure is
// logged, not returned.
func (s *Service) Send(ctx context.Context, req domain.NotificationRequest) (int, error) {
	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, actor := range targets {
		n := domain.Notification{
			ActorID:   actor.ID,
			Reference: req.Reference,
			Kind:      req.Kind,
			Title:     req.Title,
			Body:      req.Body,
			Email:     req.Email,
		}
		if _, err := s.Repo.InsertNotification(ctx, n); err != nil {
			s.log().Warn("store notification failed",
				zap.String("actor_id", actor.ID),
				zap.String("kind", req.Kind),
				zap.Error(err))
			continue
		}
		stored++
		if req.Email && s.Mailer != nil && actor.Email != "" {
			if err := s.Mailer.SendMail(ctx, actor.Email, req.Title, req.Body); err != nil {
				s.log().Warn("send mail failed",
					zap.String("actor_id", actor.ID),
					zap.Error(err))
			}
		}
	}
	return stored, nil
}

func (s *Service) resolveTargets(ctx context.Context, req domain.NotificationRequest) ([]domain.Actor, error) {
	switch {
	case req.TargetActorID != "":
		actor, err := s.Repo.GetActor(ctx, req.TargetActorID)
		if err == repo.ErrNotFound {
			// Clients may not have a profile yet; store against the id so
			// the notification is waiting when they register.
			return []domain.Actor{{ID: req.TargetActorID, Active: true}}, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.Actor{actor}, nil
	case req.TargetRole != domain.RoleUnknown:
		return s.Repo.ActiveActorsByRole(ctx, req.TargetRole)
	default:
		return nil, fmt.Errorf("notification request names no target")
	}
}
