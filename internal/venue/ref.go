package venue

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// Venue kinds.
const (
	KindYield = "yield"
	KindHedge = "hedge"
)

var validKinds = map[string]bool{
	KindYield: true,
	KindHedge: true,
}

// refRegex matches: {kind}:{venue}:{asset}
// Example: yield:lendle:usdt, hedge:mcdex:eth
var refRegex = regexp.MustCompile(`^([a-z]+):([a-z0-9-]+):([a-z0-9]+)$`)

var (
	ErrInvalidRef     = errors.New("venue: invalid reference format")
	ErrInvalidKind    = errors.New("venue: unsupported venue kind")
	ErrNotWhitelisted = errors.New("venue: reference not whitelisted")
	ErrUnknownRef     = errors.New("venue: no implementation registered for reference")
)

// Ref is a parsed venue reference.
type Ref struct {
	Raw   string `json:"raw"`
	Kind  string `json:"kind"`
	Venue string `json:"venue"`
	Asset string `json:"asset"`
}

// ParseRef parses and validates a venue reference string.
// Format: {kind}:{venue}:{asset}
func ParseRef(raw string) (*Ref, error) {
	matches := refRegex.FindStringSubmatch(raw)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {kind}:{venue}:{asset})", ErrInvalidRef, raw)
	}

	kind := matches[1]
	if !validKinds[kind] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	return &Ref{
		Raw:   raw,
		Kind:  kind,
		Venue: matches[2],
		Asset: matches[3],
	}, nil
}

// Registry is the whitelist of assignable strategy references. Only a
// registered implementation behind a whitelisted reference can become
// the active strategy, and only via the governance timelock.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]YieldStrategy
	whitelist  map[string]bool
}

// NewRegistry creates a registry with the given whitelisted references.
// References must parse; malformed entries are rejected up front.
func NewRegistry(whitelisted []string) (*Registry, error) {
	wl := make(map[string]bool, len(whitelisted))
	for _, raw := range whitelisted {
		ref, err := ParseRef(raw)
		if err != nil {
			return nil, err
		}
		if ref.Kind != KindYield {
			return nil, fmt.Errorf("%w: whitelist entry %s is not a yield venue", ErrInvalidKind, raw)
		}
		wl[raw] = true
	}
	return &Registry{
		strategies: make(map[string]YieldStrategy),
		whitelist:  wl,
	}, nil
}

// Register binds an implementation to a whitelisted reference.
func (r *Registry) Register(raw string, s YieldStrategy) error {
	if _, err := ParseRef(raw); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.whitelist[raw] {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, raw)
	}
	r.strategies[raw] = s
	return nil
}

// Whitelisted reports whether a reference may be proposed.
func (r *Registry) Whitelisted(raw string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.whitelist[raw]
}

// Resolve returns the implementation behind a whitelisted reference.
func (r *Registry) Resolve(raw string) (YieldStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.whitelist[raw] {
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, raw)
	}
	s, ok := r.strategies[raw]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRef, raw)
	}
	return s, nil
}
