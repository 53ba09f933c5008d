package entity

// NextSession describes the upcoming trading window when none is active.
type NextSession struct {
	Name           string `json:"name"`
	StartsInMinute int    `json:"starts_in_minutes"`
}

// MarketSession is computed fresh on every query and never persisted.
type MarketSession struct {
	Name        string       `json:"name"`
	StartsAt    string       `json:"starts_at"`
	EndsAt      string       `json:"ends_at"`
	Timezone    string       `json:"timezone"`
	IsActive    bool         `json:"is_active"`
	NextSession *NextSession `json:"next_session,omitempty"`
}
