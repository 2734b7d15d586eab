package xlpivot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FilterType is the kind of value a global filter holds.
type FilterType string

const (
	FilterText     FilterType = "text"
	FilterDate     FilterType = "date"
	FilterRelation FilterType = "relation"
)

// FieldBinding names the field a filter constrains in one pivot.
type FieldBinding struct {
	Field string    `json:"field" yaml:"field"`
	Type  FieldType `json:"type,omitempty" yaml:"type,omitempty"`
}

// GlobalFilter is a named filter applied to every pivot it is bound to.
// Value is a string for text filters, a DateValue for date filters and a
// list of record ids for relation filters.
type GlobalFilter struct {
	ID           string               `json:"id" yaml:"id"`
	Label        string               `json:"label" yaml:"label"`
	Type         FilterType           `json:"type" yaml:"type"`
	Fields       map[int]FieldBinding `json:"fields" yaml:"fields"`
	Value        any                  `json:"value,omitempty" yaml:"value,omitempty"`
	DefaultValue any                  `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	ModelName    string               `json:"modelName,omitempty" yaml:"modelName,omitempty"`
}

// Status is the outcome of a filter store mutation.
type Status string

const (
	StatusAccepted  Status = "Accepted"
	StatusCancelled Status = "Cancelled"
)

// Reason explains a cancelled mutation.
type Reason string

const (
	ReasonDuplicatedFilterLabel Reason = "DuplicatedFilterLabel"
	ReasonFilterNotFound        Reason = "FilterNotFound"
	ReasonInvalidFilter         Reason = "InvalidFilter"
)

// Result reports whether a mutation was applied.
type Result struct {
	Status Status
	Reason Reason
}

// IsAccepted reports whether the mutation was applied.
func (r Result) IsAccepted() bool { return r.Status == StatusAccepted }

var accepted = Result{Status: StatusAccepted}

func cancelled(reason Reason) Result {
	return Result{Status: StatusCancelled, Reason: reason}
}

// FilterStore holds the global filters of a document and folds them into
// the computed domain of every pivot of a PivotStore.
type FilterStore struct {
	pivots *PivotStore
	logger *zap.Logger
	clock  func() time.Time
	doc    *Document

	mu      sync.Mutex
	filters []*GlobalFilter
}

// NewFilterStore creates an empty filter store driving pivots.
func NewFilterStore(pivots *PivotStore, opts ...Option) *FilterStore {
	o := buildOptions(opts)
	return &FilterStore{pivots: pivots, logger: o.logger, clock: o.clock, doc: o.document}
}

// Add registers a filter. An empty ID gets a fresh ksuid; a nil Value takes
// the default value. It returns the filter id.
func (s *FilterStore) Add(f GlobalFilter) (string, Result) {
	if err := validateFilter(f); err != nil {
		s.logger.Info("rejecting filter", zap.String("label", f.Label), zap.Error(err))
		return "", cancelled(ReasonInvalidFilter)
	}
	s.mu.Lock()
	if s.findLabel(f.Label, "") != nil {
		s.mu.Unlock()
		return "", cancelled(ReasonDuplicatedFilterLabel)
	}
	if f.ID == "" {
		f.ID = ksuid.New().String()
	}
	if f.Value == nil {
		f.Value = f.DefaultValue
	}
	s.filters = append(s.filters, &f)
	s.mu.Unlock()
	s.recompute()
	return f.ID, accepted
}

// Edit replaces the filter with the given id. Renaming the label rewrites
// the FILTER.VALUE references of the attached document.
func (s *FilterStore) Edit(id string, f GlobalFilter) Result {
	if err := validateFilter(f); err != nil {
		s.logger.Info("rejecting filter", zap.String("label", f.Label), zap.Error(err))
		return cancelled(ReasonInvalidFilter)
	}
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return cancelled(ReasonFilterNotFound)
	}
	if s.findLabel(f.Label, id) != nil {
		s.mu.Unlock()
		return cancelled(ReasonDuplicatedFilterLabel)
	}
	oldLabel := s.filters[i].Label
	f.ID = id
	if f.Value == nil {
		f.Value = f.DefaultValue
	}
	s.filters[i] = &f
	s.mu.Unlock()

	if oldLabel != f.Label && s.doc != nil {
		RenameFilterReferences(s.doc, oldLabel, f.Label)
	}
	s.recompute()
	return accepted
}

// Remove deletes a filter.
func (s *FilterStore) Remove(id string) Result {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return cancelled(ReasonFilterNotFound)
	}
	s.filters = slices.Delete(s.filters, i, i+1)
	s.mu.Unlock()
	s.recompute()
	return accepted
}

// SetValue changes the current value of a filter.
func (s *FilterStore) SetValue(id string, value any) Result {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return cancelled(ReasonFilterNotFound)
	}
	next := *s.filters[i]
	next.Value = value
	s.filters[i] = &next
	s.mu.Unlock()
	s.recompute()
	return accepted
}

// Filter returns a copy of the filter with the given id.
func (s *FilterStore) Filter(id string) (GlobalFilter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return *s.filters[i], true
	}
	return GlobalFilter{}, false
}

// FilterByLabel returns a copy of the filter with the given label.
func (s *FilterStore) FilterByLabel(label string) (GlobalFilter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findLabel(label, ""); f != nil {
		return *f, true
	}
	return GlobalFilter{}, false
}

// Filters returns copies of every filter in insertion order.
func (s *FilterStore) Filters() []GlobalFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GlobalFilter, len(s.filters))
	for i, f := range s.filters {
		out[i] = *f
	}
	return out
}

func (s *FilterStore) index(id string) int {
	for i, f := range s.filters {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (s *FilterStore) findLabel(label, exceptID string) *GlobalFilter {
	for _, f := range s.filters {
		if f.Label == label && f.ID != exceptID {
			return f
		}
	}
	return nil
}

func validateFilter(f GlobalFilter) error {
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("filter label is required")
	}
	switch f.Type {
	case FilterText, FilterDate, FilterRelation:
		return nil
	}
	return fmt.Errorf("unknown filter type %q", f.Type)
}

func (s *FilterStore) recompute() {
	if err := s.RecomputeDomains(); err != nil {
		s.logger.Warn("recompute pivot domains", zap.Error(err))
	}
}

// RecomputeDomains sets the computed domain of every pivot to its base
// domain AND the domains of the filters bound to it.
func (s *FilterStore) RecomputeDomains() error {
	filters := s.Filters()
	now := s.clock()
	var errs error
	for _, def := range s.pivots.Definitions() {
		parts := []Domain{def.Domain}
		for _, f := range filters {
			binding, ok := f.Fields[def.ID]
			if !ok || binding.Field == "" {
				continue
			}
			d, err := FilterDomain(f, binding, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("filter %q on pivot %d: %w", f.Label, def.ID, err))
				continue
			}
			parts = append(parts, d)
		}
		if err := s.pivots.SetComputedDomain(def.ID, AndDomains(parts...)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// FilterDomain returns the domain a filter contributes through one field
// binding. Empty values contribute nothing.
func FilterDomain(f GlobalFilter, binding FieldBinding, now time.Time) (Domain, error) {
	switch f.Type {
	case FilterText:
		text := textValue(f.Value)
		if text == "" {
			return nil, nil
		}
		return Cond(binding.Field, "ilike", text), nil
	case FilterRelation:
		ids, err := relationIDs(f.Value)
		if err != nil || len(ids) == 0 {
			return nil, err
		}
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		return Cond(binding.Field, "in", values), nil
	case FilterDate:
		dv, ok := toDateValue(f.Value)
		if !ok {
			return nil, fmt.Errorf("invalid date value %v", f.Value)
		}
		if dv.IsZero() {
			return nil, nil
		}
		typ := binding.Type
		if typ == "" {
			typ = FieldDate
		}
		return dateRangeDomain(binding.Field, typ, dv, now)
	}
	return nil, fmt.Errorf("unknown filter type %q", f.Type)
}

func textValue(v any) string {
	if v == nil {
		return ""
	}
	return FormatScalar(v)
}

func relationIDs(v any) ([]int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return x, nil
	case []any:
		ids := make([]int, 0, len(x))
		for _, item := range x {
			id, err := strconv.Atoi(FormatScalar(item))
			if err != nil {
				return nil, fmt.Errorf("invalid record id %v", item)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("invalid relation value %v", v)
}

// DisplayValue renders the current value of the filter with the given
// label for FILTER.VALUE. Relation values are shown by display name when the
// executor can resolve names.
func (s *FilterStore) DisplayValue(ctx context.Context, label string) (string, bool) {
	f, ok := s.FilterByLabel(label)
	if !ok {
		return "", false
	}
	switch f.Type {
	case FilterDate:
		dv, ok := toDateValue(f.Value)
		if !ok || dv.IsZero() {
			return "", true
		}
		return dv.Label(s.clock()), true
	case FilterRelation:
		ids, err := relationIDs(f.Value)
		if err != nil || len(ids) == 0 {
			return "", true
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = strconv.Itoa(id)
		}
		if resolver, ok := s.pivots.exec.(LabelResolver); ok && f.ModelName != "" {
			names, err := resolver.DisplayNames(ctx, f.ModelName, keys)
			if err != nil {
				s.logger.Warn("display name lookup failed", zap.String("model", f.ModelName), zap.Error(err))
			}
			for i, k := range keys {
				if name, ok := names[k]; ok {
					keys[i] = name
				}
			}
		}
		return strings.Join(keys, ", "), true
	}
	return textValue(f.Value), true
}

var filterValueRe = regexp.MustCompile(`(?i)FILTER\.VALUE\(\s*"((?:[^"]|"")*)"\s*\)`)

// RenameFilterReferences rewrites FILTER.VALUE("oldLabel") to
// FILTER.VALUE("newLabel") in every formula of doc.
func RenameFilterReferences(doc *Document, oldLabel, newLabel string) int {
	replacement := `FILTER.VALUE("` + strings.ReplaceAll(newLabel, `"`, `""`) + `")`
	count := 0
	for _, sheet := range doc.Sheets() {
		for _, ref := range sheet.Refs() {
			cell, _ := sheet.Get(ref)
			if !cell.IsFormula() {
				continue
			}
			next := filterValueRe.ReplaceAllStringFunc(cell.Content, func(m string) string {
				label := filterValueRe.FindStringSubmatch(m)[1]
				if strings.ReplaceAll(label, `""`, `"`) != oldLabel {
					return m
				}
				count++
				return replacement
			})
			if next != cell.Content {
				sheet.Set(ref, next)
			}
		}
	}
	return count
}
