package portal

import (
	"gamesync-backend/internal/reconcile"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	in := GameInput{
		SeasonId:  "547",
		SubSiteId: "8787",
		LeagueId:  "15449",
		HomeTeam:  "S-Kiekko Punainen",
		GuestTeam: "Kiekko-Vantaa",
		Away:      true,
		Location:  "Myyrmäki 2",
		Date:      "05.07.2025",
		StartTime: "12:15",
	}
	fields := in.Fields()

	require.Equal(t, "15449", fields.Get(FIELD_LEAGUE))
	require.Equal(t, "on", fields.Get(FIELD_AWAY))
	require.Equal(t, "120", fields.Get(FIELD_DURATION))
	require.Equal(t, "0", fields.Get(FIELD_MAX_PARTICIPANTS))
	require.Equal(t, "<p></p>", fields.Get(FIELD_PUBLIC_INFO))
	require.Equal(t, "Tallenna", fields.Get(FIELD_SAVE))
	require.Equal(t,
		"Ottelu 05.07.2025 klo 12:15\nKiekko-Vantaa - S-Kiekko Punainen\nMyyrmäki 2\n\nKaikki joukkueen jäsenet",
		fields.Get(FIELD_INFO),
	)

	in.Away = false
	in.PublicInfo = "<b>Pienpeli</b>"
	in.Info = "oma teksti"
	fields = in.Fields()
	_, sent := fields[FIELD_AWAY]
	require.False(t, sent)
	require.Equal(t, "<b>Pienpeli</b>", fields.Get(FIELD_PUBLIC_INFO))
	require.Equal(t, "oma teksti", fields.Get(FIELD_INFO))
}

func TestGameInputFromExternal(t *testing.T) {
	table := []struct {
		name     string
		game     reconcile.ExternalGame
		expected GameInput
	}{
		{
			name: "home game",
			game: reconcile.ExternalGame{
				Date:      "2025-07-05",
				Time:      "12:15",
				HomeTeam:  "S-Kiekko Punainen",
				AwayTeam:  "Kiekko-Vantaa",
				Location:  "Myyrmäki 2",
				LevelName: "U13 A",
				TeamName:  "S-Kiekko Punainen",
			},
			expected: GameInput{
				LevelName: "U13 A",
				HomeTeam:  "S-Kiekko Punainen",
				GuestTeam: "Kiekko-Vantaa",
				Location:  "Myyrmäki 2",
				Date:      "05.07.2025",
				StartTime: "12:15",
				Duration:  "120",
			},
		},
		{
			name: "away small-pitch game without a time",
			game: reconcile.ExternalGame{
				Date:          "2025-07-12",
				Time:          reconcile.Unscheduled,
				HomeTeam:      "Kiekko-Espoo",
				AwayTeam:      "S-Kiekko Punainen",
				Location:      "Tapiola",
				LevelName:     "U11",
				TeamName:      "S-Kiekko Punainen",
				SmallAreaGame: true,
			},
			expected: GameInput{
				LevelName:  "U11",
				HomeTeam:   "S-Kiekko Punainen",
				GuestTeam:  "Kiekko-Espoo",
				Away:       true,
				Location:   "Tapiola",
				Date:       "12.07.2025",
				Duration:   "120",
				PublicInfo: "Pienpeli",
			},
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			require.Equal(t, row.expected, GameInputFromExternal(row.game))
		})
	}
}
