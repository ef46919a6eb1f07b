package usecase

import (
	"context"
	"strings"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
)

// ProfilesTable is the request cache resource for profile reads.
const ProfilesTable = "profiles"

// ProfileReader serves profile reads for the front end through the request cache. Bursts of
// reads for the same identity share one query, and writers drop them with
// InvalidateTable(ProfilesTable).
type ProfileReader struct {
	profiles port.ProfileRepository
	cache    *RequestCache
}

// NewProfileReader constructs a cached profile reader.
func NewProfileReader(profiles port.ProfileRepository, cache *RequestCache) *ProfileReader {
	return &ProfileReader{profiles: profiles, cache: cache}
}

// Get returns the identity's profile, from the cache while it is fresh.
func (r *ProfileReader) Get(ctx context.Context, identityID string) (domain.Profile, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return domain.Profile{}, ErrIdentityRequired
	}

	key := Key(ProfilesTable, map[string]string{"id": identityID})
	return BatchedQuery(ctx, r.cache, key, TTLDefault, func(ctx context.Context) (domain.Profile, error) {
		profile, err := r.profiles.GetProfile(ctx, identityID)
		if err != nil {
			return domain.Profile{}, err
		}
		return *profile, nil
	})
}
