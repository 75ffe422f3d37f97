package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// LeadPayload is the inbound webhook body posted by a marketing site.
type LeadPayload struct {
	ExternalRef string `json:"external_ref" validate:"omitempty,max=128"`
	FullName    string `json:"full_name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone       string `json:"phone" validate:"required_without=Email,omitempty,max=32"`
	Message     string `json:"message" validate:"max=4000"`
}

// IngestionService validates and normalizes inbound leads before handing them
// to the assignment engine.
type IngestionService struct {
	engine   *AssignmentEngine
	leads    repository.LeadRepository
	sources  *domain.SourceRegistry
	cache    repository.IngestionCache
	validate *validator.Validate
	region   string
	logger   *zap.Logger
}

// IngestionDependencies bundles collaborators for IngestionService.
type IngestionDependencies struct {
	Engine  *AssignmentEngine
	Sources *domain.SourceRegistry
	// Store resolves cache hits to the current lead. Without it the cache is not consulted.
	Store repository.Store
	// Cache is optional.
	Cache         repository.IngestionCache
	DefaultRegion string
	Logger        *zap.Logger
}

// NewIngestionService creates the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	region := strings.ToUpper(strings.TrimSpace(deps.DefaultRegion))
	if region == "" {
		region = "IT"
	}
	var leads repository.LeadRepository
	if deps.Store != nil {
		leads = deps.Store.Leads()
	}
	return &IngestionService{
		engine:   deps.Engine,
		leads:    leads,
		sources:  deps.Sources,
		cache:    deps.Cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		region:   region,
		logger:   logger,
	}
}

// Ingest stores and assigns one lead. The error semantics are those of
// AssignmentEngine.AssignLead, plus ValidationError for bad input.
func (s *IngestionService) Ingest(ctx context.Context, rawSource string, payload LeadPayload) (*AssignmentResult, error) {
	source, err := s.sources.Parse(rawSource)
	if err != nil {
		return nil, apperrors.NewValidationError("unknown lead source", map[string]any{"source": rawSource})
	}
	lead, err := s.normalize(source, payload)
	if err != nil {
		return nil, err
	}

	if lead.ExternalRef != nil {
		if res, err := s.cached(ctx, source, *lead.ExternalRef); res != nil {
			return res, err
		}
	}

	result, err := s.engine.AssignLead(ctx, lead)
	if result != nil && lead.ExternalRef != nil {
		record := repository.IngestionRecord{LeadID: result.LeadID}
		if s.cache != nil {
			if cacheErr := s.cache.Put(context.WithoutCancel(ctx), source, *lead.ExternalRef, record); cacheErr != nil {
				s.logger.Warn("ingestion cache write failed", zap.String("source", string(source)), zap.Error(cacheErr))
			}
		}
	}
	return result, err
}

// cached answers a redelivery from the cache marker plus a primary-key read, so the
// caller sees the lead as it is now, including manual reassignments since ingestion.
// Any miss falls through to the engine, which deduplicates on the external reference.
func (s *IngestionService) cached(ctx context.Context, source domain.LeadSource, ref string) (*AssignmentResult, error) {
	if s.cache == nil || s.leads == nil {
		return nil, nil
	}
	record, err := s.cache.Get(ctx, source, ref)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("ingestion cache read failed", zap.String("source", string(source)), zap.Error(err))
		}
		return nil, nil
	}
	lead, err := s.leads.GetByID(ctx, record.LeadID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("cached lead lookup failed", zap.String("lead_id", record.LeadID), zap.Error(err))
		}
		return nil, nil
	}

	result := resultFromLead(lead)
	result.Duplicate = true
	if result.AssignedAgentID == nil {
		return result, apperrors.NewNoEligibleAgents(string(source), result.LeadID)
	}
	return result, nil
}

func (s *IngestionService) normalize(source domain.LeadSource, payload LeadPayload) (NewLead, error) {
	payload.ExternalRef = strings.TrimSpace(payload.ExternalRef)
	payload.FullName = strings.TrimSpace(payload.FullName)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Phone = strings.TrimSpace(payload.Phone)

	if err := s.validate.Struct(payload); err != nil {
		return NewLead{}, validationError(err)
	}

	lead := NewLead{
		Source:   source,
		FullName: payload.FullName,
		Email:    payload.Email,
		Message:  payload.Message,
	}
	if payload.ExternalRef != "" {
		ref := payload.ExternalRef
		lead.ExternalRef = &ref
	}
	if payload.Phone != "" {
		phone, err := normalizePhone(payload.Phone, s.region)
		if err != nil {
			return NewLead{}, apperrors.NewValidationError("invalid payload", map[string]any{"phone": "invalid phone number"})
		}
		lead.Phone = phone
	}
	return lead, nil
}

// normalizePhone returns the E.164 form of raw, reading national numbers in region.
func normalizePhone(raw, region string) (string, error) {
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", errors.New("not a valid number")
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[jsonFieldName(fe.Field())] = fe.Tag()
	}
	return apperrors.NewValidationError("invalid payload", details)
}

var payloadFields = map[string]string{
	"ExternalRef": "external_ref",
	"FullName":    "full_name",
	"Email":       "email",
	"Phone":       "phone",
	"Message":     "message",
}

func jsonFieldName(field string) string {
	if name, ok := payloadFields[field]; ok {
		return name
	}
	return strings.ToLower(field)
}
