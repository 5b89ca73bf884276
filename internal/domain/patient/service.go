package patient

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/pkg/pagination"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Search returns one page of patients whose name contains keyword. An empty
// keyword lists every patient.
func (s *Service) Search(ctx context.Context, keyword string, p pagination.Params) (*pagination.Page[*Patient], error) {
	var (
		items []*Patient
		total int
		err   error
	)
	if keyword == "" {
		items, total, err = s.repo.List(ctx, p.Limit(), p.Offset())
	} else {
		items, total, err = s.repo.SearchByName(ctx, keyword, p.Limit(), p.Offset())
	}
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, p), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.FindByID(ctx, id)
}

// Create always inserts a new record; an ID set by the caller is discarded.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.ID = 0
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Int64("patient_id", p.ID).Msg("patient created")
	return nil
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: patient id is required", apperr.ErrValidation)
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Int64("patient_id", p.ID).Msg("patient updated")
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("patient_id", id).Msg("patient deleted")
	return nil
}
