package resultsapi

import (
	"context"
	"fmt"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/reconcile"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const gamesResponse = `[
	{"LevelName": "U13 A", "Games": [
		{"GameID": 5567001, "GameDate": "01.07.2025", "GameTime": "12:00", "HomeTeamAbbrv": "S-Kiekko Punainen",
		 "AwayTeamAbbrv": "Kiekko-Vantaa", "HomeGoals": "", "AwayGoals": "", "RinkName": "Myyrmäki 2",
		 "LevelName": "U13 A", "StatGroupName": "Lohko 3B", "SmallAreaGame": "0"}
	]},
	{"LevelName": "U13 A", "Games": []},
	{"LevelName": "U13 A", "Games": [
		{"GameID": "5567002", "GameDate": "05.07.2025", "GameTime": "00:00", "HomeTeamAbbrv": "Kiekko-Espoo",
		 "AwayTeamAbbrv": "S-Kiekko Punainen", "HomeGoals": null, "AwayGoals": null, "RinkName": "Tapiola",
		 "LevelName": "U13 A", "StatGroupName": "Lohko 3B", "SmallAreaGame": 1}
	]}
]`

type recorded struct {
	path string
	form url.Values
}

func setup(t testing.TB) (Client, *[]recorded) {
	var requests []recorded
	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			requests = append(requests, recorded{path: r.URL.Path, form: r.PostForm})
			w.Header().Set("content-type", "application/json")
			fmt.Fprint(w, body)
		})
	}
	handle("/helpers/getLevels.php", `[{"LevelID": 12, "LevelName": "U13 A"}, {"LevelID": "13", "LevelName": "U15 B"}]`)
	handle("/serie/helpers/getStatGroups.php", `[{"StatGroupID": 3401, "StatGroupName": "Lohko 3B"}]`)
	handle("/serie/helpers/getStatGroup.php", `{"Teams": [{"TeamID": 981, "TeamAbbrv": "S-Kiekko Punainen", "TeamAssociation": "S-Kiekko"}]}`)
	handle("/helpers/getGames.php", gamesResponse)
	mux.HandleFunc("/broken.php", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewClient(Options{BaseUrl: server.URL + "/", RequestsPerSecond: 100}, &telemetry.Recorder{}), &requests
}

func TestLevelsGroupsTeams(t *testing.T) {
	client, requests := setup(t)
	ctx := context.Background()

	levels, err := client.Levels(ctx, "2025")
	require.NoError(t, err)
	require.Equal(t, []Level{{LevelID: "12", LevelName: "U13 A"}, {LevelID: "13", LevelName: "U15 B"}}, levels)

	groups, err := client.StatGroups(ctx, "2025", "12", "")
	require.NoError(t, err)
	require.Equal(t, []StatGroup{{StatGroupID: "3401", StatGroupName: "Lohko 3B"}}, groups)

	teams, err := client.Teams(ctx, "2025", "3401")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Equal(t, Value("981"), teams[0].TeamID)

	require.Len(t, *requests, 3)
	require.Equal(t, "2025", (*requests)[0].form.Get("season"))
	require.Equal(t, "0", (*requests)[1].form.Get("districtid"))
	require.Equal(t, "3401", (*requests)[2].form.Get("stgid"))
}

func TestGames(t *testing.T) {
	client, requests := setup(t)

	games, err := client.Games(context.Background(), GamesQuery{
		Season:      "2025",
		StatGroupId: "3401",
		TeamId:      "981",
		GameDays:    3,
		From:        time.Date(2025, 6, 30, 0, 0, 0, 0, chrono.Helsinki()),
	})
	require.NoError(t, err)
	require.Len(t, games, 2)

	form := (*requests)[0].form
	require.Equal(t, "2025-06-30", form.Get("dog"))
	require.Equal(t, "3", form.Get("gamedays"))
	require.Equal(t, "981", form.Get("teamid"))
	require.Equal(t, "0", form.Get("dwl"))

	team := TeamRef{TeamId: "981", TeamName: "S-Kiekko Punainen", Type: reconcile.TYPE_MANAGE}
	expected := []reconcile.ExternalGame{
		{
			GameID: "5567001", Date: "2025-07-01", Time: "12:00",
			HomeTeam: "S-Kiekko Punainen", AwayTeam: "Kiekko-Vantaa", Location: "Myyrmäki 2",
			LevelName: "U13 A", StatGroupName: "Lohko 3B",
			TeamID: "981", TeamName: "S-Kiekko Punainen", Type: reconcile.TYPE_MANAGE,
		},
		{
			GameID: "5567002", Date: "2025-07-05", Time: reconcile.Unscheduled,
			HomeTeam: "Kiekko-Espoo", AwayTeam: "S-Kiekko Punainen", Location: "Tapiola",
			LevelName: "U13 A", StatGroupName: "Lohko 3B", SmallAreaGame: true,
			TeamID: "981", TeamName: "S-Kiekko Punainen", Type: reconcile.TYPE_MANAGE,
		},
	}
	var got []reconcile.ExternalGame
	for _, g := range games {
		got = append(got, g.External(team))
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("external games differ (-want +got):\n%s", diff)
	}
}

func TestUnparsableDatePassesThrough(t *testing.T) {
	game := Game{GameID: "1", GameDate: "2025/07/01"}
	_, err := game.Date()
	require.Error(t, err)
	require.Equal(t, "2025/07/01", game.External(TeamRef{}).Date)
}

func TestErrorStatus(t *testing.T) {
	client, _ := setup(t)
	_, err := post[[]Level](context.Background(), client.http, "Broken", "/broken.php", url.Values{})
	require.ErrorContains(t, err, "502")
}
