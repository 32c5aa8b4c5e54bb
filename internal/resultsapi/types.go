package resultsapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/reconcile"
	"strings"
	"time"
)

// Value is a scalar the service sends either as a json string or a json number.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	switch string(data) {
	case "true":
		*v = "1"
		return nil
	case "false":
		*v = "0"
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	err := json.Unmarshal(data, &n)
	if err != nil {
		return err
	}
	*v = Value(n.String())
	return nil
}

func (v Value) String() string {
	return string(v)
}

type Level struct {
	LevelID   Value `json:"LevelID"`
	LevelName Value `json:"LevelName"`
}

type StatGroup struct {
	StatGroupID   Value `json:"StatGroupID"`
	StatGroupName Value `json:"StatGroupName"`
}

type Team struct {
	TeamID          Value `json:"TeamID"`
	TeamAbbrv       Value `json:"TeamAbbrv"`
	TeamAssociation Value `json:"TeamAssociation"`
	TeamImg         Value `json:"TeamImg"`
}

type statGroupResponse struct {
	Teams []Team `json:"Teams"`
}

type Game struct {
	GameID        Value `json:"GameID"`
	GameDate      Value `json:"GameDate"`
	GameTime      Value `json:"GameTime"`
	HomeTeamAbbrv Value `json:"HomeTeamAbbrv"`
	AwayTeamAbbrv Value `json:"AwayTeamAbbrv"`
	HomeGoals     Value `json:"HomeGoals"`
	AwayGoals     Value `json:"AwayGoals"`
	RinkName      Value `json:"RinkName"`
	LevelName     Value `json:"LevelName"`
	StatGroupName Value `json:"StatGroupName"`
	SmallAreaGame Value `json:"SmallAreaGame"`
}

type gamesLevel struct {
	Games []Game `json:"Games"`
}

// Date parses the service's dd.mm.yyyy date.
func (g Game) Date() (time.Time, error) {
	date, err := time.ParseInLocation("02.01.2006", strings.TrimSpace(g.GameDate.String()), chrono.Helsinki())
	if err != nil {
		return time.Time{}, fmt.Errorf("game %s: %w", g.GameID, err)
	}
	return date, nil
}

// TeamRef identifies one of the operator's teams at the results service.
type TeamRef struct {
	TeamId      string             `json:"team_id"`
	TeamName    string             `json:"team_name"`
	Season      string             `json:"season"`
	StatGroupId string             `json:"stat_group_id"`
	Type        reconcile.GameType `json:"type"`
}

// External converts a game to the form the matcher works on. A date the service
// sends in an unexpected format is passed through unchanged so the matcher can
// flag it.
func (g Game) External(team TeamRef) reconcile.ExternalGame {
	date := strings.TrimSpace(g.GameDate.String())
	if parsed, err := g.Date(); err == nil {
		date = parsed.Format(time.DateOnly)
	}
	return reconcile.ExternalGame{
		GameID:        g.GameID.String(),
		Date:          date,
		Time:          reconcile.NormalizeTime(g.GameTime.String()),
		HomeTeam:      strings.TrimSpace(g.HomeTeamAbbrv.String()),
		AwayTeam:      strings.TrimSpace(g.AwayTeamAbbrv.String()),
		Location:      strings.TrimSpace(g.RinkName.String()),
		LevelName:     strings.TrimSpace(g.LevelName.String()),
		StatGroupName: strings.TrimSpace(g.StatGroupName.String()),
		SmallAreaGame: g.SmallAreaGame.String() == "1",
		TeamID:        team.TeamId,
		TeamName:      team.TeamName,
		Type:          team.Type,
		HomeGoals:     g.HomeGoals.String(),
		AwayGoals:     g.AwayGoals.String(),
	}
}
