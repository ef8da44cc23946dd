package stage

import (
	"fmt"
	"sort"
	"time"
)

// Catalog is the full set of stages known to the orchestrator, built once at
// startup. It provides lookup by ID and the derived reverse dependency edges.
type Catalog struct {
	stages   map[ID]Stage
	ordered  []ID           // IDs in registration order
	reverse  map[ID][]ID    // dep -> stages that require it
}

// NewCatalog builds a catalogue from the given stages.
// Returns an error on duplicate IDs or dependencies on unknown stages.
func NewCatalog(stages []Stage) (*Catalog, error) {
	c := &Catalog{
		stages:  make(map[ID]Stage, len(stages)),
		reverse: make(map[ID][]ID),
	}

	for _, s := range stages {
		if s.ID == "" {
			return nil, fmt.Errorf("stage with empty ID")
		}
		if _, exists := c.stages[s.ID]; exists {
			return nil, fmt.Errorf("duplicate stage %q", s.ID)
		}
		c.stages[s.ID] = s
		c.ordered = append(c.ordered, s.ID)
	}

	// Validate dependency references and build reverse edges.
	for _, s := range stages {
		for _, dep := range s.DependsOn {
			if _, exists := c.stages[dep]; !exists {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.ID, dep)
			}
			if dep == s.ID {
				return nil, fmt.Errorf("stage %q depends on itself", s.ID)
			}
			c.reverse[dep] = append(c.reverse[dep], s.ID)
		}
	}

	for dep := range c.reverse {
		sort.Slice(c.reverse[dep], func(i, j int) bool {
			return c.reverse[dep][i] < c.reverse[dep][j]
		})
	}

	return c, nil
}

// Get returns the stage with the given ID.
func (c *Catalog) Get(id ID) (Stage, bool) {
	s, ok := c.stages[id]
	return s, ok
}

// Contains reports whether the catalogue has a stage with the given ID.
func (c *Catalog) Contains(id ID) bool {
	_, ok := c.stages[id]
	return ok
}

// IDs returns all stage IDs in registration order.
func (c *Catalog) IDs() []ID {
	out := make([]ID, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Stages returns all stages in registration order.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, 0, len(c.ordered))
	for _, id := range c.ordered {
		out = append(out, c.stages[id])
	}
	return out
}

// Len returns the number of stages in the catalogue.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// RequiredFor returns the stages that directly depend on the given stage.
func (c *Catalog) RequiredFor(id ID) []ID {
	deps := c.reverse[id]
	out := make([]ID, len(deps))
	copy(out, deps)
	return out
}

// CriticalIDs returns the IDs of all stages flagged critical, in
// registration order.
func (c *Catalog) CriticalIDs() []ID {
	var out []ID
	for _, id := range c.ordered {
		if c.stages[id].Critical {
			out = append(out, id)
		}
	}
	return out
}

// SequentialDuration returns the sum of all stage estimated durations: the
// cost of running the whole catalogue one stage at a time.
func (c *Catalog) SequentialDuration() time.Duration {
	var total time.Duration
	for _, s := range c.stages {
		total += s.EstimatedDuration
	}
	return total
}

// Default stage IDs for the built-in catalogue.
const (
	CoreServices  ID = "core_services"
	Connectivity  ID = "connectivity"
	Auth          ID = "authentication"
	Session       ID = "session"
	Identity      ID = "identity"
	Profile       ID = "user_profile"
	Preferences   ID = "preferences"
	Locals        ID = "locals_directory"
	Jobs          ID = "jobs_feed"
	PayScales     ID = "pay_scales"
	Referrals     ID = "referrals"
	Notifications ID = "notifications"
	FeatureFlags  ID = "feature_flags"
	ContentCache  ID = "content_cache"
	Analytics     ID = "analytics"
)

// DefaultCatalog returns the built-in stage catalogue. Callers that need a
// different stage set should construct their own via NewCatalog (typically
// from configuration).
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Stage{
		{ID: CoreServices, EstimatedDuration: 300 * time.Millisecond, Priority: 100, Critical: true,
			Description: "platform service wiring"},
		{ID: Connectivity, EstimatedDuration: 200 * time.Millisecond, Priority: 95, Critical: true,
			Description: "network reachability probe"},
		{ID: Auth, DependsOn: []ID{CoreServices}, EstimatedDuration: 500 * time.Millisecond, Priority: 90, Critical: true,
			Description: "credential validation"},
		{ID: Session, DependsOn: []ID{Auth}, EstimatedDuration: 400 * time.Millisecond, Priority: 85, Critical: true,
			Description: "session establishment"},
		{ID: Identity, DependsOn: []ID{Session}, EstimatedDuration: 300 * time.Millisecond, Priority: 80, Critical: true,
			Description: "member identity resolution"},
		{ID: Profile, DependsOn: []ID{Identity}, EstimatedDuration: 800 * time.Millisecond, Priority: 75, Parallelizable: true,
			Description: "member profile load"},
		{ID: Preferences, DependsOn: []ID{Identity}, EstimatedDuration: 250 * time.Millisecond, Priority: 60, Parallelizable: true,
			Description: "user preferences load"},
		{ID: Locals, DependsOn: []ID{Session}, EstimatedDuration: 900 * time.Millisecond, Priority: 70, Parallelizable: true,
			Description: "locals directory load"},
		{ID: Jobs, DependsOn: []ID{Session, Locals}, EstimatedDuration: 1200 * time.Millisecond, Priority: 65, Parallelizable: true,
			Description: "jobs feed load"},
		{ID: PayScales, DependsOn: []ID{Locals}, EstimatedDuration: 600 * time.Millisecond, Priority: 50, Parallelizable: true,
			Description: "pay scale tables load"},
		{ID: Referrals, DependsOn: []ID{Profile, Jobs}, EstimatedDuration: 500 * time.Millisecond, Priority: 45, Parallelizable: true,
			Description: "referral status load"},
		{ID: Notifications, DependsOn: []ID{Session}, EstimatedDuration: 350 * time.Millisecond, Priority: 55, Parallelizable: true,
			Description: "notification channel setup"},
		{ID: FeatureFlags, DependsOn: []ID{CoreServices}, EstimatedDuration: 150 * time.Millisecond, Priority: 88, Parallelizable: true,
			Description: "feature flag fetch"},
		{ID: ContentCache, DependsOn: []ID{Connectivity}, EstimatedDuration: 400 * time.Millisecond, Priority: 40, Parallelizable: true,
			Description: "content cache warmup"},
		{ID: Analytics, DependsOn: []ID{Identity}, EstimatedDuration: 200 * time.Millisecond, Priority: 30, Parallelizable: true,
			Description: "analytics session start"},
	})
	if err != nil {
		// The built-in catalogue is fixed data; a construction error is a bug.
		panic(err)
	}
	return c
}
