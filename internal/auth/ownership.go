package auth

import "context"

// CanActFor reports whether the caller may write records owned by instrumentistID.
// Operators and admins act for anyone; instrumentists only for themselves.
func CanActFor(ctx context.Context, instrumentistID string) bool {
	if RoleAtLeast(RoleFromContext(ctx), RoleOperator) {
		return true
	}
	return instrumentistID != "" && instrumentistID == SubjectFromContext(ctx)
}

// CanView reports whether the caller may read records owned by instrumentistID.
// Only instrumentists are restricted to their own records.
func CanView(ctx context.Context, instrumentistID string) bool {
	if RoleFromContext(ctx) != RoleInstrumentist {
		return true
	}
	return instrumentistID != "" && instrumentistID == SubjectFromContext(ctx)
}

// ScopeInstrumentist returns the instrumentist filter a listing must apply.
// Instrumentists are pinned to their own id whatever they requested.
func ScopeInstrumentist(ctx context.Context, requested string) string {
	if RoleFromContext(ctx) == RoleInstrumentist {
		return SubjectFromContext(ctx)
	}
	return requested
}
