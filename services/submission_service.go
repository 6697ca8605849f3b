package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/internal/intake"
	"github.com/matrix-portfolio/portfolio-api/internal/store"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// JobSubmitter queues detached work. *WorkerPool satisfies it.
type JobSubmitter interface {
	Submit(job Job) bool
}

// SubmissionService is the contact-form pipeline: validate, persist, then
// hand the notification to the worker pool.
type SubmissionService struct {
	validator *intake.Validator
	store     store.SubmissionStore
	jobs      JobSubmitter
	notifier  Notifier
	now       func() time.Time
	newID     func() string
	log       *zap.SugaredLogger
}

func NewSubmissionService(v *intake.Validator, st store.SubmissionStore, jobs JobSubmitter, notifier Notifier) *SubmissionService {
	if v == nil {
		v = intake.NewValidator(nil)
	}
	return &SubmissionService{
		validator: v,
		store:     st,
		jobs:      jobs,
		notifier:  notifier,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logger.GetLogger().Named("submissions"),
	}
}

// Submit validates raw and stores it with the caller's IP. A validation error
// is returned unchanged and nothing is stored. A store failure is returned as
// StorageUnavailable and no notification is queued. Once the record is
// stored the call succeeds whatever happens to the notification.
func (s *SubmissionService) Submit(ctx context.Context, raw types.ContactRequest, callerIP string) (types.Submission, error) {
	sub, err := s.validator.Validate(raw)
	if err != nil {
		s.log.Debugw("Submission rejected", "ip", callerIP, "reason", err)
		return types.Submission{}, err
	}

	sub.ID = s.newID()
	sub.OriginIP = callerIP
	sub.CreatedAt = s.now().UTC()

	// The store bounds the call itself; a client hanging up mid-insert must
	// not abort a write that may already have committed.
	if err := s.store.CreateSubmission(context.WithoutCancel(ctx), &sub); err != nil {
		s.log.Errorw("Failed to save submission",
			"store", s.store.Name(),
			"email", logger.MaskEmail(sub.Email),
			"error", err)
		return types.Submission{}, apperrors.StorageUnavailable(err)
	}

	s.log.Infow("Submission saved",
		"id", sub.ID,
		"email", logger.MaskEmail(sub.Email),
		"store", s.store.Name())

	s.queueNotification(sub)
	return sub, nil
}

func (s *SubmissionService) queueNotification(sub types.Submission) {
	if s.notifier == nil || !s.notifier.Enabled() || s.jobs == nil {
		return
	}
	queued := s.jobs.Submit(Job{
		Name: "contact-notification:" + sub.ID,
		Execute: func(ctx context.Context) error {
			return s.notifier.NotifySubmission(ctx, sub)
		},
	})
	if !queued {
		s.log.Warnw("Notification not queued", "id", sub.ID)
	}
}

// List returns every stored submission, newest first, without origin IPs.
// Callers are expected to have checked the admin credential.
func (s *SubmissionService) List(ctx context.Context) ([]types.Submission, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		s.log.Errorw("Failed to list submissions", "store", s.store.Name(), "error", err)
		return nil, apperrors.StorageUnavailable(err)
	}
	return PublicView(subs), nil
}

// PublicView strips fields that listing readers must never see.
func PublicView(subs []types.Submission) []types.Submission {
	return lo.Map(subs, func(sub types.Submission, _ int) types.Submission {
		sub.OriginIP = ""
		return sub
	})
}
