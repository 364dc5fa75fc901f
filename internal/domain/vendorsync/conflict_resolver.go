package vendorsync

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// ErrUnknownStrategy is returned when a strategy name is not registered
var ErrUnknownStrategy = errors.New("vendorsync: unknown conflict resolution strategy")

// StrategyName identifies a conflict resolution strategy
type StrategyName string

const (
	StrategyLastWriteWins  StrategyName = "last-write-wins"
	StrategySourcePriority StrategyName = "source-priority"
	StrategyMerge          StrategyName = "merge"
	StrategyManualReview   StrategyName = "manual-review"
)

// Resolution is the outcome of resolving one record pair. Envelope is set
// only when the conflict was deferred to an operator.
type Resolution struct {
	Record   VendorRecord
	Strategy StrategyName
	Envelope *ConflictEnvelope
}

// RequiresReview reports whether the record must not be applied automatically
func (r Resolution) RequiresReview() bool {
	return r.Envelope != nil && r.Envelope.RequiresReview
}

// ResolutionStrategy reconciles one vendor record with its internal
// counterpart. Implementations must be pure: identical inputs resolve to the
// input record.
type ResolutionStrategy interface {
	Name() StrategyName
	Description() string
	Resolve(vendor, internal VendorRecord, conflictType ConflictType) Resolution
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// LastWriteWins keeps whichever record was modified last. Ties keep the
// internal record.
type LastWriteWins struct{}

func (LastWriteWins) Name() StrategyName { return StrategyLastWriteWins }

func (LastWriteWins) Description() string {
	return "newer updated_at (falling back to created_at) wins wholesale"
}

func (s LastWriteWins) Resolve(vendor, internal VendorRecord, _ ConflictType) Resolution {
	if vendor.LastModified().After(internal.LastModified()) {
		return Resolution{Record: vendor.Clone(), Strategy: s.Name()}
	}
	return Resolution{Record: internal.Clone(), Strategy: s.Name()}
}

// SourcePriority picks the record of the first source in Order
type SourcePriority struct {
	Order []RecordSource
}

// DefaultSourcePriority prefers vendor data
func DefaultSourcePriority() []RecordSource {
	return []RecordSource{SourceVendor, SourceInternal}
}

func (SourcePriority) Name() StrategyName { return StrategySourcePriority }

func (SourcePriority) Description() string {
	return "first source in the configured priority list wins wholesale"
}

func (s SourcePriority) Resolve(vendor, internal VendorRecord, _ ConflictType) Resolution {
	order := s.Order
	if len(order) == 0 {
		order = DefaultSourcePriority()
	}
	for _, src := range order {
		switch src {
		case SourceVendor:
			return Resolution{Record: vendor.Clone(), Strategy: s.Name()}
		case SourceInternal:
			return Resolution{Record: internal.Clone(), Strategy: s.Name()}
		}
	}
	return Resolution{Record: vendor.Clone(), Strategy: s.Name()}
}

// Merge unions fields with vendor values overriding internal ones while
// keeping the internal id and created_at.
type Merge struct{}

func (Merge) Name() StrategyName { return StrategyMerge }

func (Merge) Description() string {
	return "field-level union, vendor overrides, internal identity preserved"
}

func (s Merge) Resolve(vendor, internal VendorRecord, _ ConflictType) Resolution {
	return Resolution{Record: mergeRecords(vendor, internal), Strategy: s.Name()}
}

// ManualReview never auto-resolves. The vendor record is returned inside an
// envelope for an operator to decide.
type ManualReview struct {
	Now func() time.Time
}

func (ManualReview) Name() StrategyName { return StrategyManualReview }

func (ManualReview) Description() string {
	return "conflicts are flagged for operator review"
}

func (s ManualReview) Resolve(vendor, internal VendorRecord, conflictType ConflictType) Resolution {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if conflictType == "" {
		conflictType = ConflictTypeData
	}
	return Resolution{
		Record:   vendor.Clone(),
		Strategy: s.Name(),
		Envelope: &ConflictEnvelope{
			Type:           conflictType,
			VendorValue:    vendor.Clone(),
			InternalValue:  internal.Clone(),
			Conflicts:      DetectConflicts(vendor, internal),
			FlaggedAt:      now(),
			RequiresReview: true,
		},
	}
}

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// ResolverOption configures a ConflictResolver
type ResolverOption func(*ConflictResolver)

// WithSourcePriority sets the order used by the source-priority strategy
func WithSourcePriority(order ...RecordSource) ResolverOption {
	return func(r *ConflictResolver) {
		r.strategies[StrategySourcePriority] = SourcePriority{Order: order}
	}
}

// WithStrategy registers an additional or replacement strategy
func WithStrategy(s ResolutionStrategy) ResolverOption {
	return func(r *ConflictResolver) {
		r.strategies[s.Name()] = s
	}
}

// WithReviewClock sets the clock stamped on manual-review envelopes
func WithReviewClock(now func() time.Time) ResolverOption {
	return func(r *ConflictResolver) {
		r.strategies[StrategyManualReview] = ManualReview{Now: now}
	}
}

// ConflictResolver detects conflicts and resolves them with a named strategy
type ConflictResolver struct {
	mu          sync.RWMutex
	strategies  map[StrategyName]ResolutionStrategy
	defaultName StrategyName
}

// NewConflictResolver creates a resolver whose default strategy is
// defaultStrategy. The four built-in strategies are always registered.
func NewConflictResolver(defaultStrategy StrategyName, opts ...ResolverOption) (*ConflictResolver, error) {
	r := &ConflictResolver{
		strategies: map[StrategyName]ResolutionStrategy{
			StrategyLastWriteWins:  LastWriteWins{},
			StrategySourcePriority: SourcePriority{Order: DefaultSourcePriority()},
			StrategyMerge:          Merge{},
			StrategyManualReview:   ManualReview{},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if defaultStrategy == "" {
		defaultStrategy = StrategyLastWriteWins
	}
	if _, ok := r.strategies[defaultStrategy]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, defaultStrategy)
	}
	r.defaultName = defaultStrategy
	return r, nil
}

// DefaultStrategy returns the name of the configured strategy
func (r *ConflictResolver) DefaultStrategy() StrategyName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefaultStrategy switches the active strategy
func (r *ConflictResolver) SetDefaultStrategy(name StrategyName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	r.defaultName = name
	return nil
}

// Strategies lists registered strategy names in sorted order
func (r *ConflictResolver) Strategies() []StrategyName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]StrategyName, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// DetectConflicts compares vendor against internal
func (r *ConflictResolver) DetectConflicts(vendor, internal VendorRecord) []ConflictDescriptor {
	return DetectConflicts(vendor, internal)
}

// Resolve applies the default strategy
func (r *ConflictResolver) Resolve(vendor, internal VendorRecord, conflictType ConflictType) (Resolution, error) {
	return r.ResolveWith(r.DefaultStrategy(), vendor, internal, conflictType)
}

// ResolveWith applies a named strategy. Records without any conflicting
// field pass through as the vendor record.
func (r *ConflictResolver) ResolveWith(name StrategyName, vendor, internal VendorRecord, conflictType ConflictType) (Resolution, error) {
	r.mu.RLock()
	strategy, ok := r.strategies[name]
	r.mu.RUnlock()
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if len(DetectConflicts(vendor, internal)) == 0 {
		return Resolution{Record: vendor.Clone(), Strategy: name}, nil
	}
	return strategy.Resolve(vendor, internal, conflictType), nil
}

// ParseSourcePriority converts configured source names
func ParseSourcePriority(names []string) ([]RecordSource, error) {
	out := make([]RecordSource, 0, len(names))
	for _, n := range names {
		src := RecordSource(n)
		if !src.IsValid() {
			return nil, fmt.Errorf("vendorsync: unknown record source %q", n)
		}
		if !slices.Contains(out, src) {
			out = append(out, src)
		}
	}
	return out, nil
}
