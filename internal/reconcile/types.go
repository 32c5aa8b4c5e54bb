package reconcile

// GameType tells whether the operator owns a team's schedule or only follows it.
type GameType string

const (
	TYPE_MANAGE GameType = "manage"
	TYPE_FOLLOW GameType = "follow"
)

// Unscheduled is the time of an external game whose start time is not published.
const Unscheduled = "unscheduled"

// ExternalGame is a match as published by the results service.
type ExternalGame struct {
	GameID string `json:"game_id"`
	// Date is YYYY-MM-DD.
	Date string `json:"date"`
	// Time is HH:MM or Unscheduled.
	Time          string   `json:"time"`
	HomeTeam      string   `json:"home_team"`
	AwayTeam      string   `json:"away_team"`
	Location      string   `json:"location"`
	LevelName     string   `json:"level_name"`
	StatGroupName string   `json:"stat_group_name"`
	SmallAreaGame bool     `json:"small_area_game"`
	TeamID        string   `json:"team_id"`
	TeamName      string   `json:"team_name"`
	Type          GameType `json:"type"`
	HomeGoals     string   `json:"home_goals"`
	AwayGoals     string   `json:"away_goals"`
}

// InternalEntry is a game as recorded in the club's admin portal.
type InternalEntry struct {
	UID  string `json:"uid"`
	Date string `json:"date"`
	Time string `json:"time"`
	// TeamsLabel is "Home - Away".
	TeamsLabel string `json:"teams_label"`
	Location   string `json:"location"`
	Notes      string `json:"notes"`
	League     string `json:"league"`
}

type Status string

const (
	STATUS_GREEN  Status = "green"
	STATUS_YELLOW Status = "yellow"
	STATUS_RED    Status = "red"
)

type MatchResult struct {
	Game  ExternalGame   `json:"game"`
	Match *InternalEntry `json:"match"`
	// Status is green when every criterion agreed, yellow when some did not and
	// red when the game has no counterpart.
	Status Status `json:"status"`
	// Reason lists every disagreement, empty when green.
	Reason string `json:"reason"`
	// Warning is set when the best candidate scored low enough to deserve a
	// manual look, regardless of Status.
	Warning       string `json:"warning,omitempty"`
	Score         int    `json:"score"`
	Discrepancies int    `json:"discrepancies"`
}
