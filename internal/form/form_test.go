package form

import (
	"context"
	"errors"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/testutil"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const gamePrefix = "ctl00$MainContentPlaceHolder$GamesBasicForm$"

func setup(t testing.TB) (Scraper, *session.State, *testutil.FakePortal, *telemetry.Recorder) {
	portal := testutil.NewFakePortal(t)
	tel := &telemetry.Recorder{}
	manager := session.NewManager(session.Options{
		AuthUrl:           portal.AuthUrl(),
		LockerroomUrl:     portal.LockerroomUrl(),
		AdminLinkUrl:      portal.AdminLinkUrl(),
		RequestsPerSecond: 100,
	}, clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)), tel)

	state, err := manager.Login(context.Background(), session.Credentials{
		Username: portal.Username,
		Password: portal.Password,
	})
	require.NoError(t, err)

	return NewScraper(manager, tel), state, portal, tel
}

func TestLoadForm(t *testing.T) {
	scraper, state, portal, _ := setup(t)
	portal.Games = append(portal.Games, testutil.FakeGame{
		Id:         "42",
		League:     "15460",
		Home:       "Punainen",
		Guest:      "Kiekko-Vantaa",
		Away:       true,
		Location:   "Myyrmäki 2",
		Date:       "01.07.2025",
		Time:       "12:00",
		Duration:   "90",
		PublicInfo: "<p>Tervetuloa</p>",
	})

	form, err := scraper.LoadForm(context.Background(), state, "Games/Game.aspx?gId=42")
	require.NoError(t, err)

	require.True(t, form.Tokens.Complete())
	require.Equal(t, form.Tokens, state.Tokens)

	leagues, err := form.Select("LeagueDropdownList")
	require.NoError(t, err)
	require.Len(t, leagues.Options, 3)
	require.Equal(t, gamePrefix+"LeagueDropdownList", leagues.Name)
	selected, ok := leagues.Selected()
	require.True(t, ok)
	require.Equal(t, Option{Value: "15460", Text: "U15 B-sarja", Selected: true}, selected)

	events, err := form.Select("EventDropDownList")
	require.NoError(t, err)
	_, ok = events.Selected()
	require.False(t, ok)

	require.Equal(t, "Punainen", form.Inputs["HomeTeamTextBox"])
	require.Equal(t, "Kiekko-Vantaa", form.Inputs["GuestTeamTextBox"])
	require.Equal(t, "Myyrmäki 2", form.Inputs["GameLocationTextBox"])
	require.Equal(t, "90", form.Inputs["GameDurationTextBox"])
	require.True(t, form.Checkboxes["AwayCheckbox"])
	require.Equal(t, "<p>Tervetuloa</p>", form.TextAreas["GamePublicInfoTextBox"])
	require.Equal(t, "S-Kiekko U13", form.Labels["MainContentPlaceHolder_GamesBasicForm_SitenameLabel"])
	require.Equal(t, gamePrefix+"GameDateTextBox", form.Names["GameDateTextBox"])
	require.NotContains(t, form.Inputs, "SaveGameButton")

	_, err = form.Select("Missing")
	require.ErrorIs(t, err, ErrFormParsing)
}

func TestLoadFormMissingToken(t *testing.T) {
	scraper, state, portal, tel := setup(t)
	portal.OmitEventValidation = true

	_, err := scraper.LoadForm(context.Background(), state, "Games/Game.aspx")
	require.ErrorIs(t, err, ErrFormParsing)
	require.NotEmpty(t, tel.Find("broken", report_scraper_load))
}

func gameFields(date string) url.Values {
	return url.Values{
		gamePrefix + "LeagueDropdownList":   {"15449"},
		gamePrefix + "HomeTeamTextBox":      {"Punainen"},
		gamePrefix + "GuestTeamTextBox":     {"Kiekko-Espoo"},
		gamePrefix + "GameLocationTextBox":  {"Arena 3"},
		gamePrefix + "GameDateTextBox":      {date},
		gamePrefix + "GameStartTimeTextBox": {"12:00"},
		gamePrefix + "SaveGameButton":       {"Tallenna"},
	}
}

func TestSubmit(t *testing.T) {
	scraper, state, portal, _ := setup(t)

	_, err := scraper.Submit(context.Background(), state, "Games/Game.aspx", gameFields("01.07.2025"))
	require.NoError(t, err)

	posts := portal.PostsTo("Games/Game.aspx")
	require.Len(t, posts, 1)
	form := posts[0].Form
	require.Equal(t, "Punainen", form.Get(gamePrefix+"HomeTeamTextBox"))
	require.Equal(t, "Tallenna", form.Get(gamePrefix+"SaveGameButton"))
	for _, name := range []string{FIELD_EVENTTARGET, FIELD_EVENTARGUMENT, FIELD_LASTFOCUS} {
		require.Contains(t, form, name)
		require.Empty(t, form.Get(name))
	}
	require.NotEmpty(t, form.Get(FIELD_VIEWSTATE))

	require.Len(t, portal.Games, 1)
	require.Equal(t, "Arena 3", portal.Games[0].Location)
}

func TestSubmitUsesFreshTokens(t *testing.T) {
	scraper, state, portal, _ := setup(t)
	ctx := context.Background()

	_, err := scraper.LoadForm(ctx, state, "Games/Game.aspx")
	require.NoError(t, err)
	stale := state.Tokens

	_, err = scraper.Submit(ctx, state, "Games/Game.aspx", gameFields("01.07.2025"))
	require.NoError(t, err)

	posts := portal.PostsTo("Games/Game.aspx")
	require.Len(t, posts, 1)
	require.NotEqual(t, stale.ViewState, posts[0].Form.Get(FIELD_VIEWSTATE))
}

func TestSubmitRemoteValidationError(t *testing.T) {
	scraper, state, portal, tel := setup(t)

	_, err := scraper.Submit(context.Background(), state, "Games/Game.aspx", gameFields(""))
	var rejected *RemoteValidationError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "Päivämäärä ja kotijoukkue ovat pakollisia kenttiä.", rejected.Message)
	require.Empty(t, portal.Games)
	require.NotEmpty(t, tel.Find("warning", report_scraper_submit))

	portal.RejectMessage = "Ottelu on jo olemassa"
	_, err = scraper.Submit(context.Background(), state, "Games/Game.aspx", gameFields("01.07.2025"))
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "Ottelu on jo olemassa", rejected.Message)

	portal.RejectMessage = "Virheet:\n  - kotijoukkue puuttuu\n  - aika puuttuu"
	_, err = scraper.Submit(context.Background(), state, "Games/Game.aspx", gameFields("01.07.2025"))
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "Virheet:\n  - kotijoukkue puuttuu\n  - aika puuttuu", rejected.Message)
}

func TestSubmitExpiredSession(t *testing.T) {
	scraper, state, portal, _ := setup(t)
	portal.ExpireSessions()

	_, err := scraper.Submit(context.Background(), state, "Games/Game.aspx", gameFields("01.07.2025"))
	require.ErrorIs(t, err, session.ErrSessionExpired)
	require.Empty(t, portal.PostsTo("Games/Game.aspx"))
}
