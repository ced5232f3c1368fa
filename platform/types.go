package platform

// Profile is the normalized user profile. Optional fields absent upstream
// hold their defaults after validation.
type Profile struct {
	ID                     int64    `json:"id"`
	Name                   string   `json:"name"`
	DisplayName            string   `json:"displayName,omitempty"`
	Description            string   `json:"description"`
	Created                string   `json:"created,omitempty"`
	IsBanned               bool     `json:"isBanned"`
	ExternalAppDisplayName *string  `json:"externalAppDisplayName"`
	HasVerifiedBadge       bool     `json:"hasVerifiedBadge"`
	PreviousUsernames      []string `json:"previousUsernames"`
	Stats                  *Stats   `json:"stats,omitempty"`
}

// Stats are the three social counters of a user.
type Stats struct {
	Friends   int64 `json:"friends"`
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// UsernameMatch is one result of a batch username lookup.
type UsernameMatch struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	DisplayName       string `json:"displayName,omitempty"`
	RequestedUsername string `json:"requestedUsername,omitempty"`
	HasVerifiedBadge  bool   `json:"hasVerifiedBadge"`
}

// Status is the free-text presence status a user sets on their profile.
type Status struct {
	Status string `json:"status"`
}

// Relation selects one of the social counters.
type Relation string

const (
	RelationFriends    Relation = "friends"
	RelationFollowers  Relation = "followers"
	RelationFollowings Relation = "followings"
)
