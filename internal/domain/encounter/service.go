package encounter

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/pkg/pagination"
)

// DefaultExportMaxRows caps the rows written by Export when no limit is set.
const DefaultExportMaxRows = 10000

type Service struct {
	repo          Repository
	logger        zerolog.Logger
	exportMaxRows int
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		logger:        logger.With().Str("component", "encounter").Logger(),
		exportMaxRows: DefaultExportMaxRows,
	}
}

// SetExportMaxRows overrides the export row cap. Non-positive values are ignored.
func (s *Service) SetExportMaxRows(n int) {
	if n > 0 {
		s.exportMaxRows = n
	}
}

// ListEncounters returns one page of visits matching the filter.
func (s *Service) ListEncounters(ctx context.Context, f Filter, q PageQuery) (*pagination.Response[*Summary], error) {
	preds := s.compile(f)
	items, total, err := s.repo.List(ctx, preds, q)
	if err != nil {
		return nil, err
	}
	return pagination.NewResponse(items, total, q.Params), nil
}

// ExportEncounters returns every visit matching the filter in the requested
// order, up to the export row cap. The page fields of q are ignored. The
// returned bool reports whether the result was truncated.
func (s *Service) ExportEncounters(ctx context.Context, f Filter, q PageQuery) ([]*Summary, bool, error) {
	preds := s.compile(f)
	q.Params = pagination.Params{Page: 1, PerPage: s.exportMaxRows}
	items, total, err := s.repo.List(ctx, preds, q)
	if err != nil {
		return nil, false, err
	}
	truncated := total > len(items)
	if truncated {
		s.logger.Warn().Int("total", total).Int("max_rows", s.exportMaxRows).Msg("export truncated")
	}
	return items, truncated, nil
}

func (s *Service) compile(f Filter) []Predicate {
	if dropped := f.InvalidBounds(); len(dropped) > 0 {
		s.logger.Debug().Strs("params", dropped).Msg("ignoring unparsable date bounds")
	}
	return f.Compile()
}

// GetDetail assembles the full clinical timeline of one visit. The child
// reads run concurrently once the visit is known to exist.
func (s *Service) GetDetail(ctx context.Context, stayID int64) (*Detail, error) {
	visit, err := s.repo.GetVisit(ctx, stayID)
	if err != nil {
		return nil, err
	}

	var (
		triage    *TriageRecord
		vitals    []VitalObservation
		diagnoses []DiagnosisEntry
		recon     []ReconciliationRecord
		disp      []DispensingRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		triage, err = s.repo.GetTriage(gctx, stayID)
		return err
	})
	g.Go(func() error {
		var err error
		vitals, err = s.repo.ListVitals(gctx, stayID)
		return err
	})
	g.Go(func() error {
		var err error
		diagnoses, err = s.repo.ListDiagnoses(gctx, stayID)
		return err
	})
	g.Go(func() error {
		var err error
		recon, err = s.repo.ListReconciliation(gctx, stayID)
		return err
	})
	g.Go(func() error {
		var err error
		disp, err = s.repo.ListDispensing(gctx, stayID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if vitals == nil {
		vitals = []VitalObservation{}
	}
	if diagnoses == nil {
		diagnoses = []DiagnosisEntry{}
	}

	return &Detail{
		Visit:         *visit,
		DurationHours: visit.DurationHours(),
		Triage:        triage,
		VitalSigns:    vitals,
		Diagnoses:     diagnoses,
		Medications:   MergeMedications(recon, disp),
	}, nil
}

// MergeMedications builds the medication timeline: reconciliation events then
// dispensing events, stably sorted by timestamp with missing timestamps first.
// Events with equal timestamps keep reconciliation before dispensing and each
// channel's input order.
func MergeMedications(recon []ReconciliationRecord, disp []DispensingRecord) []MedicationEvent {
	events := make([]MedicationEvent, 0, len(recon)+len(disp))
	for i := range recon {
		events = append(events, FromReconciliation(&recon[i]))
	}
	for i := range disp {
		events = append(events, FromDispensing(&disp[i]))
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].ChartTime, events[j].ChartTime
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})
	return events
}

// GetFilterOptions returns the distinct values for each filter control,
// sorted ascending, and the arrival-time range.
func (s *Service) GetFilterOptions(ctx context.Context) (*FilterCatalog, error) {
	cat := &FilterCatalog{}
	fields := []struct {
		field CatalogField
		dst   *[]string
	}{
		{CatalogGender, &cat.Genders},
		{CatalogRace, &cat.Races},
		{CatalogDisposition, &cat.Dispositions},
		{CatalogChiefComplaint, &cat.ChiefComplaints},
	}
	for _, f := range fields {
		values, err := s.repo.DistinctValues(ctx, f.field)
		if err != nil {
			return nil, err
		}
		*f.dst = sortedNonEmpty(values)
	}

	first, last, err := s.repo.ArrivalRange(ctx)
	if err != nil {
		return nil, err
	}
	cat.DateRange = DateRange{Min: first, Max: last}
	return cat, nil
}

func sortedNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
