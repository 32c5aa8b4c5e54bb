package portal

import (
	"fmt"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/lib/textutil"
	"net/url"
	"strings"
	"time"
)

const (
	siteSelectorPrefix = "ctl00$MenuContentPlaceHolder$MainMenu$SiteSelector1$"
	gameFormPrefix     = "ctl00$MainContentPlaceHolder$GamesBasicForm$"

	FIELD_SEASON           = siteSelectorPrefix + "DropDownListSeasons"
	FIELD_SUBSITE          = siteSelectorPrefix + "DropDownListSubSites"
	FIELD_LEAGUE           = gameFormPrefix + "LeagueDropdownList"
	FIELD_EVENT            = gameFormPrefix + "EventDropDownList"
	FIELD_HOME_TEAM        = gameFormPrefix + "HomeTeamTextBox"
	FIELD_GUEST_TEAM       = gameFormPrefix + "GuestTeamTextBox"
	FIELD_AWAY             = gameFormPrefix + "AwayCheckbox"
	FIELD_LOCATION         = gameFormPrefix + "GameLocationTextBox"
	FIELD_DATE             = gameFormPrefix + "GameDateTextBox"
	FIELD_START_TIME       = gameFormPrefix + "GameStartTimeTextBox"
	FIELD_DURATION         = gameFormPrefix + "GameDurationTextBox"
	FIELD_DEADLINE         = gameFormPrefix + "GameDeadlineTextBox"
	FIELD_MAX_PARTICIPANTS = gameFormPrefix + "GameMaxParticipatesTextBox"
	FIELD_PUBLIC_INFO      = gameFormPrefix + "GamePublicInfoTextBox"
	FIELD_FEED             = gameFormPrefix + "FeedGameDropdown"
	FIELD_INFO             = gameFormPrefix + "GameInfoTextBox"
	FIELD_NOTIFICATION     = gameFormPrefix + "GameNotificationTextBox"
	FIELD_SAVE             = gameFormPrefix + "SaveGameButton"
)

const (
	portalDateLayout = "02.01.2006"
	defaultDuration  = "120"
)

// GameInput is everything the game form takes. HomeTeam is always the club's own
// team; Away marks that it plays as the visitor.
type GameInput struct {
	SeasonId  string `json:"season_id"`
	SubSiteId string `json:"sub_site_id"`
	LeagueId  string `json:"league_id"`
	// LevelName is resolved to a league when LeagueId is empty.
	LevelName string `json:"level_name"`
	EventId   string `json:"event_id"`

	HomeTeam  string `json:"home_team"`
	GuestTeam string `json:"guest_team"`
	Away      bool   `json:"away"`
	Location  string `json:"location"`
	// Date is dd.mm.yyyy.
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	Duration        string `json:"duration"`
	MaxParticipants string `json:"max_participants"`

	PublicInfo   string `json:"public_info"`
	Info         string `json:"info"`
	Notification string `json:"notification"`
}

func (in GameInput) infoText() string {
	if in.Info != "" {
		return in.Info
	}
	home, guest := in.HomeTeam, in.GuestTeam
	if in.Away {
		home, guest = guest, home
	}
	return fmt.Sprintf("Ottelu %s klo %s\n%s - %s\n%s\n\nKaikki joukkueen jäsenet", in.Date, in.StartTime, home, guest, in.Location)
}

func (in GameInput) publicInfoHtml() string {
	info := strings.TrimSpace(in.PublicInfo)
	if strings.HasPrefix(info, "<") {
		return info
	}
	return fmt.Sprintf("<p>%s</p>", info)
}

// Fields renders the input under the form's field names.
func (in GameInput) Fields() url.Values {
	duration := in.Duration
	if duration == "" {
		duration = defaultDuration
	}
	maxParticipants := in.MaxParticipants
	if maxParticipants == "" {
		maxParticipants = "0"
	}

	fields := url.Values{
		FIELD_SEASON:           {in.SeasonId},
		FIELD_SUBSITE:          {in.SubSiteId},
		FIELD_LEAGUE:           {in.LeagueId},
		FIELD_EVENT:            {in.EventId},
		FIELD_HOME_TEAM:        {in.HomeTeam},
		FIELD_GUEST_TEAM:       {in.GuestTeam},
		FIELD_LOCATION:         {in.Location},
		FIELD_DATE:             {in.Date},
		FIELD_START_TIME:       {in.StartTime},
		FIELD_DURATION:         {duration},
		FIELD_DEADLINE:         {""},
		FIELD_MAX_PARTICIPANTS: {maxParticipants},
		FIELD_PUBLIC_INFO:      {in.publicInfoHtml()},
		FIELD_FEED:             {"0"},
		FIELD_INFO:             {in.infoText()},
		FIELD_NOTIFICATION:     {in.Notification},
		FIELD_SAVE:             {"Tallenna"},
	}
	// an unchecked checkbox is not posted at all
	if in.Away {
		fields.Set(FIELD_AWAY, "on")
	}
	return fields
}

// GameInputFromExternal builds the form input for an external game. The club's
// team is whichever side resembles the game's TeamName more.
func GameInputFromExternal(game reconcile.ExternalGame) GameInput {
	in := GameInput{
		LevelName: game.LevelName,
		HomeTeam:  game.HomeTeam,
		GuestTeam: game.AwayTeam,
		Location:  game.Location,
		Date:      game.Date,
		Duration:  defaultDuration,
	}

	if game.TeamName != "" &&
		textutil.Similarity(game.TeamName, game.AwayTeam) > textutil.Similarity(game.TeamName, game.HomeTeam) {
		in.Away = true
		in.HomeTeam = game.AwayTeam
		in.GuestTeam = game.HomeTeam
	}

	if parsed, err := time.Parse(time.DateOnly, game.Date); err == nil {
		in.Date = parsed.Format(portalDateLayout)
	}
	if t := reconcile.NormalizeTime(game.Time); t != reconcile.Unscheduled {
		in.StartTime = t
	}
	if game.SmallAreaGame {
		in.PublicInfo = "Pienpeli"
	}
	return in
}
