package reconcile

// Weights are the scoring constants of the matcher. They were tuned by hand
// against real schedules, treat them as calibration values.
type Weights struct {
	DateMatch   int `json:"date_match"`
	TimeExact   int `json:"time_exact"`
	TimeDefault int `json:"time_default"`

	LocationMatch     int `json:"location_match"`
	LocationThreshold int `json:"location_threshold"`
	VenuePenalty      int `json:"venue_penalty"`

	TeamMatch          int `json:"team_match"`
	TeamThreshold      int `json:"team_threshold"`
	TeamBonus          int `json:"team_bonus"`
	TeamBonusThreshold int `json:"team_bonus_threshold"`

	SmallPitchMatch    int      `json:"small_pitch_match"`
	SmallPitchPenalty  int      `json:"small_pitch_penalty"`
	SmallPitchKeywords []string `json:"small_pitch_keywords"`

	// WarningScore is the best score below which a warning is attached.
	WarningScore int `json:"warning_score"`
	// DefaultTime is what the portal shows for a game created without a start time.
	DefaultTime string `json:"default_time"`
}

func DefaultWeights() Weights {
	return Weights{
		DateMatch:   20,
		TimeExact:   30,
		TimeDefault: 15,

		LocationMatch:     20,
		LocationThreshold: 80,
		VenuePenalty:      10,

		TeamMatch:          15,
		TeamThreshold:      90,
		TeamBonus:          10,
		TeamBonusThreshold: 95,

		SmallPitchMatch:    5,
		SmallPitchPenalty:  5,
		SmallPitchKeywords: []string{"pienpeli", "small pitch"},

		WarningScore: 60,
		DefaultTime:  "07:00",
	}
}
