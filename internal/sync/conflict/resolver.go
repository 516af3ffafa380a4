// Package conflict decides which profile copy survives a reconciliation.
package conflict

import (
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// ResolutionStrategy defines how a local/remote disagreement is settled.
type ResolutionStrategy string

const (
	// ResolutionStrategyRemoteWins keeps the cloud copy whenever one exists.
	ResolutionStrategyRemoteWins ResolutionStrategy = "remote_wins"
	// ResolutionStrategyLastWriteWins keeps the copy with the newer UpdatedAt.
	ResolutionStrategyLastWriteWins ResolutionStrategy = "last_write_wins"
)

// ParseStrategy maps a config value to a strategy; unknown values select remote_wins.
func ParseStrategy(s string) ResolutionStrategy {
	if ResolutionStrategy(s) == ResolutionStrategyLastWriteWins {
		return ResolutionStrategyLastWriteWins
	}
	return ResolutionStrategyRemoteWins
}

// Side names which copy won.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
	SideNone   Side = "none"
)

// Resolver settles profile reconciliation.
type Resolver struct {
	strategy ResolutionStrategy
	log      *logging.Logger
}

// NewResolver creates a new Resolver with the specified strategy.
func NewResolver(strategy ResolutionStrategy, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.Get()
	}
	return &Resolver{strategy: strategy, log: log}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() ResolutionStrategy {
	return r.strategy
}

// ResolveResult represents the outcome of a reconciliation.
type ResolveResult struct {
	Winner   *models.UserProfile
	Side     Side
	Diverged bool // both copies existed and differed
}

// Resolve picks the surviving profile. Either argument may be nil.
func (r *Resolver) Resolve(local, remote *models.UserProfile) ResolveResult {
	switch {
	case remote == nil && local == nil:
		return ResolveResult{Side: SideNone}
	case remote == nil:
		return ResolveResult{Winner: local, Side: SideLocal}
	case local == nil:
		return ResolveResult{Winner: remote, Side: SideRemote}
	}

	diverged := !sameProfile(*local, *remote)
	side := SideRemote
	if r.strategy == ResolutionStrategyLastWriteWins && local.UpdatedAt.After(remote.UpdatedAt) {
		side = SideLocal
	}

	if diverged {
		r.log.Info("profile copies diverged", map[string]interface{}{
			"profile_id":        local.ID,
			"local_updated_at":  local.UpdatedAt,
			"remote_updated_at": remote.UpdatedAt,
			"strategy":          r.strategy,
			"winner_side":       side,
		})
	}

	winner := remote
	if side == SideLocal {
		winner = local
	}
	return ResolveResult{Winner: winner, Side: side, Diverged: diverged}
}

func sameProfile(a, b models.UserProfile) bool {
	if a.ID != b.ID || a.FirstName != b.FirstName || a.Age != b.Age ||
		a.HeightCm != b.HeightCm || a.WeightKg != b.WeightKg || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if (a.LastName == nil) != (b.LastName == nil) || (a.LastName != nil && *a.LastName != *b.LastName) {
		return false
	}
	if (a.DateOfBirth == nil) != (b.DateOfBirth == nil) || (a.DateOfBirth != nil && !a.DateOfBirth.Equal(*b.DateOfBirth)) {
		return false
	}
	return true
}
