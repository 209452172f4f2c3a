package anchor

import "context"

// Store is the system trust-anchor registry. The OS owns the durable state;
// this interface only mediates access to it.
//
// Implementations must keep the registry's idempotence semantics: adding a
// certificate whose content is already present neither errors nor creates a
// duplicate entry, and removing an absent certificate is not fatal. The
// reconciler relies on those guarantees instead of tracking membership
// itself.
type Store interface {
	// Add registers the given certificate files as trust anchors.
	Add(ctx context.Context, files []string) error
	// Remove deletes the anchors matching the given certificate files by content.
	Remove(ctx context.Context, files []string) error
	// CountByLabel counts anchors whose label contains marker. This is a
	// coarse substring probe over the store listing, not exact membership.
	CountByLabel(ctx context.Context, marker string) (int, error)
	// Consolidate refreshes the derived trust bundles.
	Consolidate(ctx context.Context) error
}
