package workflow

import (
	"time"
)

// TransitionContext records who asked for a transition and why. It flows
// unchanged into the audit entry.
type TransitionContext struct {
	UpdatedBy string         `json:"updated_by"`
	Reason    string         `json:"reason"`
	Source    string         `json:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditEntry describes one accepted transition for the audit trail.
type AuditEntry struct {
	EntityType    EntityType     `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	PrevLegacy    string         `json:"prev_legacy"`
	PrevUnified   string         `json:"prev_unified"`
	NewLegacy     string         `json:"new_legacy"`
	NewUnified    string         `json:"new_unified"`
	UpdatedBy     string         `json:"updated_by"`
	Reason        string         `json:"reason"`
	Source        string         `json:"source,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	TransitionedAt time.Time     `json:"transitioned_at"`
}

// DualWriteResult carries everything the caller needs to persist a
// transition: the legacy field set, the unified field set, and the audit
// entry. The projector never performs I/O itself; the caller merges both
// update maps into a single document write and appends the audit entry.
type DualWriteResult struct {
	EntityType    EntityType     `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Validation    Validation     `json:"validation"`
	LegacyUpdate  map[string]any `json:"legacy_update,omitempty"`
	UnifiedUpdate map[string]any `json:"unified_update,omitempty"`
	AuditLog      AuditEntry     `json:"audit_log"`
}

// Projector produces dual-write payloads for validated transitions. The
// clock is injectable so projections are deterministic under test.
type Projector struct {
	now func() time.Time
}

// NewProjector constructs a projector using the wall clock.
func NewProjector() *Projector {
	return &Projector{now: time.Now}
}

// NewProjectorAt constructs a projector with a fixed clock.
func NewProjectorAt(now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{now: now}
}

// SafeDualWriteStatus validates the proposed transition and, when legal,
// projects the legacy update, the unified update, and the audit entry. It
// never returns an error for an illegal transition: the verdict is embedded
// in the result and the update maps are left nil, so the caller decides
// whether to reject, retry, or ignore.
func (p *Projector) SafeDualWriteStatus(entity EntityType, entityID, newUnified, currentLegacy, currentUnified string, tc TransitionContext) DualWriteResult {
	result := DualWriteResult{
		EntityType: entity,
		EntityID:   entityID,
	}
	result.Validation = ValidateStatusTransition(entity, currentUnified, newUnified)
	if !result.Validation.Valid {
		return result
	}

	c := chains[entity]
	legacyLabel, ok := c.legacy[newUnified]
	if !ok {
		// Unreachable while checkTaxonomy holds; validation already
		// rejected unknown statuses.
		result.Validation = invalid("no legacy label for %s %s", entity, newUnified)
		return result
	}

	at := p.now().UTC()
	result.LegacyUpdate = map[string]any{
		c.legacyField: legacyLabel,
	}
	result.UnifiedUpdate = map[string]any{
		c.unifiedField:                 newUnified,
		c.unifiedField + "_updated_at": at,
	}
	result.AuditLog = AuditEntry{
		EntityType:     entity,
		EntityID:       entityID,
		PrevLegacy:     currentLegacy,
		PrevUnified:    currentUnified,
		NewLegacy:      legacyLabel,
		NewUnified:     newUnified,
		UpdatedBy:      tc.UpdatedBy,
		Reason:         tc.Reason,
		Source:         tc.Source,
		Metadata:       tc.Metadata,
		TransitionedAt: at,
	}
	return result
}
