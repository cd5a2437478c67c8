package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/florascope/florascope/internal/activity"
	"github.com/florascope/florascope/internal/cache"
	"github.com/florascope/florascope/internal/classifier"
	"github.com/florascope/florascope/internal/imagestore"
	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/repository"
)

// refundTimeout bounds the quota refund after a failed identification.
const refundTimeout = 5 * time.Second

// ResultCache is the subset of cache.ResultCache used by Identify.
type ResultCache interface {
	Get(ctx context.Context, digest string) (*classifier.Result, error)
	Set(ctx context.Context, digest string, result *classifier.Result) error
	SetNoPlant(ctx context.Context, digest string) error
}

// IdentificationDeps groups the collaborators of IdentificationService.
// Results and Sightings are optional.
type IdentificationDeps struct {
	Store      repository.Store
	Classifier classifier.Classifier
	Images     imagestore.Store
	Results    ResultCache
	Sightings  activity.Recorder
	Policy     quota.Policy
	Logger     *slog.Logger
	Metrics    metrics.Recorder

	MaxImageBytes       int
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// IdentificationService runs the identify flow and serves history.
type IdentificationService struct {
	store      repository.Store
	classifier classifier.Classifier
	images     imagestore.Store
	results    ResultCache
	sightings  activity.Recorder
	policy     quota.Policy
	logger     *slog.Logger
	metrics    metrics.Recorder

	maxImageBytes       int
	historyDefaultLimit int
	historyMaxLimit     int
	now                 func() time.Time
}

// NewIdentificationService creates a new IdentificationService.
func NewIdentificationService(deps IdentificationDeps) *IdentificationService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Images == nil {
		deps.Images = imagestore.Inline{}
	}
	if deps.HistoryDefaultLimit <= 0 {
		deps.HistoryDefaultLimit = 10
	}
	if deps.HistoryMaxLimit < deps.HistoryDefaultLimit {
		deps.HistoryMaxLimit = deps.HistoryDefaultLimit
	}
	return &IdentificationService{
		store:               deps.Store,
		classifier:          deps.Classifier,
		images:              deps.Images,
		results:             deps.Results,
		sightings:           deps.Sightings,
		policy:              deps.Policy,
		logger:              deps.Logger.With("component", "service.identification"),
		metrics:             deps.Metrics,
		maxImageBytes:       deps.MaxImageBytes,
		historyDefaultLimit: deps.HistoryDefaultLimit,
		historyMaxLimit:     deps.HistoryMaxLimit,
		now:                 utcNow,
	}
}

// IdentifyInput defines input for an identification.
type IdentifyInput struct {
	UserID      string
	ImageBase64 string
}

// IdentifyOutput is a stored identification plus the caller's allowance
// after it was charged.
type IdentifyOutput struct {
	Identification *model.Identification
	Usage          quota.Status
}

// Identify charges one identification against the user's allowance,
// classifies the image and stores the result. The charge is refunded
// when no identification is stored.
func (s *IdentificationService) Identify(ctx context.Context, input IdentifyInput) (*IdentifyOutput, error) {
	if err := ValidateUserID(input.UserID); err != nil {
		return nil, err
	}

	img, err := classifier.DecodeImage(input.ImageBase64, s.maxImageBytes)
	if err != nil {
		switch {
		case errors.Is(err, classifier.ErrImageTooLarge):
			return nil, fmt.Errorf("%w: %w", ErrImageTooLarge, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
	}

	now := s.now()
	var tier quota.Tier
	usage, err := s.store.UpdateUsage(ctx, input.UserID, func(u *model.UserUsage) error {
		var consumeErr error
		tier, consumeErr = s.policy.Consume(u, now)
		return consumeErr
	})
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.metrics.IncQuotaRejected(string(tier))
			s.metrics.IncIdentification("", metrics.OutcomeRejected)
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	ident, err := s.identify(ctx, input.UserID, img, now)
	if err != nil {
		s.refund(ctx, input.UserID, now)
		return nil, err
	}

	if s.sightings != nil {
		s.sightings.Record(ctx, model.Sighting{
			ScientificName: ident.ScientificName,
			CommonName:     ident.CommonName,
			Family:         ident.Family,
			SeenAt:         ident.CreatedAt,
		})
	}

	return &IdentifyOutput{
		Identification: ident,
		Usage:          s.policy.Status(usage, now),
	}, nil
}

// identify classifies img and persists the identification.
func (s *IdentificationService) identify(ctx context.Context, userID string, img *classifier.Image, now time.Time) (*model.Identification, error) {
	result, outcome, err := s.classify(ctx, img)
	if err != nil {
		switch {
		case errors.Is(err, classifier.ErrNoPlantDetected):
			s.metrics.IncIdentification("", metrics.OutcomeNoPlant)
			return nil, ErrNoPlantDetected
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.metrics.IncIdentification("", metrics.OutcomeFailed)
			return nil, err
		default:
			s.metrics.IncIdentification("", metrics.OutcomeFailed)
			s.logger.Error("classification failed", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
		}
	}

	imageURL, err := s.images.Save(ctx, userID, img)
	if err != nil {
		s.metrics.IncIdentification(result.Provider, metrics.OutcomeFailed)
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	ident := &model.Identification{
		ID:             ulid.Make().String(),
		UserID:         userID,
		ImageURL:       imageURL,
		ImageDigest:    img.Digest,
		ScientificName: result.ScientificName,
		CommonNames:    result.CommonNames,
		Confidence:     model.ConfidencePercent(result.Probability),
		Family:         result.Family,
		Description:    result.Description,
		Origin:         result.Origin,
		Type:           result.Type,
		Provider:       result.Provider,
		CreatedAt:      now,
	}
	ident.ApplyDefaults()

	if err := s.store.CreateIdentification(ctx, ident); err != nil {
		s.metrics.IncIdentification(result.Provider, metrics.OutcomeFailed)
		return nil, fmt.Errorf("failed to save identification: %w", err)
	}

	s.metrics.IncIdentification(result.Provider, outcome)
	s.logger.Info("plant identified",
		"user_id", userID,
		"identification_id", ident.ID,
		"provider", ident.Provider,
		"confidence", ident.Confidence,
		"outcome", outcome,
	)
	return ident, nil
}

// classify consults the result cache before the classifier chain.
func (s *IdentificationService) classify(ctx context.Context, img *classifier.Image) (*classifier.Result, string, error) {
	if s.results != nil {
		cached, err := s.results.Get(ctx, img.Digest)
		switch {
		case err == nil:
			s.metrics.IncResultCacheHit()
			return cached, metrics.OutcomeCached, nil
		case errors.Is(err, classifier.ErrNoPlantDetected):
			s.metrics.IncResultCacheHit()
			return nil, "", err
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncResultCacheMiss()
		default:
			s.metrics.IncResultCacheMiss()
			s.logger.Warn("result cache read failed", "error", err)
		}
	}

	start := time.Now()
	result, err := s.classifier.Classify(ctx, img)
	s.metrics.ObserveClassifyDuration(time.Since(start))

	if s.results != nil {
		var cacheErr error
		switch {
		case err == nil:
			cacheErr = s.results.Set(ctx, img.Digest, result)
		case errors.Is(err, classifier.ErrNoPlantDetected):
			cacheErr = s.results.SetNoPlant(ctx, img.Digest)
		}
		if cacheErr != nil {
			s.logger.Warn("result cache write failed", "error", cacheErr)
		}
	}

	if err != nil {
		return nil, "", err
	}
	return result, metrics.OutcomeSuccess, nil
}

// refund returns the charged identification. It runs even when ctx is
// already cancelled.
func (s *IdentificationService) refund(ctx context.Context, userID string, now time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	_, err := s.store.UpdateUsage(ctx, userID, func(u *model.UserUsage) error {
		s.policy.Refund(u, now)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to refund quota", "user_id", userID, "error", err)
	}
}

// History returns the user's identifications, newest first. A
// non-positive limit uses the default; larger limits are capped.
func (s *IdentificationService) History(ctx context.Context, userID string, limit int) ([]*model.Identification, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyDefaultLimit
	}
	if limit > s.historyMaxLimit {
		limit = s.historyMaxLimit
	}

	idents, err := s.store.ListIdentificationsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifications: %w", err)
	}
	if idents == nil {
		idents = []*model.Identification{}
	}
	return idents, nil
}
