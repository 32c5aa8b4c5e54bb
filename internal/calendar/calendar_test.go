package calendar

import (
	"context"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/reconcile"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var feed = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//Jopox//Kalenteri//FI",
	"BEGIN:VEVENT",
	"UID:1201@hallinta.example.com",
	"DTSTAMP:20250601T080000Z",
	"DTSTART:20250701T090000Z",
	"SUMMARY:Ottelu: Punainen - Kiekko-Vantaa",
	`DESCRIPTION:Pienpeli\, 3v3\nKokoontuminen 11:15`,
	"LOCATION:Myyrmäki 2",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:1202@hallinta.example.com",
	"DTSTAMP:20250601T080000Z",
	"DTSTART:20250702T150000Z",
	"SUMMARY:Harjoitus",
	"DESCRIPTION:Jäätreeni",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:1203",
	"DTSTAMP:20250601T080000Z",
	"DTSTART:20250705T100000Z",
	"SUMMARY:OTTELU Kiekko-Espoo - Punainen",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

func TestParse(t *testing.T) {
	events, err := Parse([]byte(feed), DefaultKeyword)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "1201@hallinta.example.com", events[0].UID)
	require.Equal(t, "Pienpeli, 3v3\nKokoontuminen 11:15", events[0].Description)
	require.Equal(t, "Myyrmäki 2", events[0].Location)
	require.Equal(t, 2025, events[0].Start.Year())

	require.Equal(t, "1203", events[1].UID)
	require.Empty(t, events[1].Description)
}

func TestMergeNotes(t *testing.T) {
	events, err := Parse([]byte(feed), DefaultKeyword)
	require.NoError(t, err)

	entries := []reconcile.InternalEntry{
		{UID: "1201", Notes: ""},
		{UID: "1202", Notes: "kept"},
		{UID: "1203", Notes: "also kept"},
	}
	merged := MergeNotes(entries, events)

	require.Equal(t, "Pienpeli, 3v3\nKokoontuminen 11:15", merged[0].Notes)
	require.Equal(t, "kept", merged[1].Notes)
	require.Equal(t, "also kept", merged[2].Notes)
	require.Empty(t, entries[0].Notes)
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendar.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("content-type", "text/calendar")
		w.Write([]byte(feed))
	}))
	t.Cleanup(server.Close)

	tel := &telemetry.Recorder{}
	f := NewFeed("", 0, tel)

	events, err := f.Fetch(context.Background(), server.URL+"/calendar.ics")
	require.NoError(t, err)
	require.Len(t, events, 2)

	_, err = f.Fetch(context.Background(), server.URL+"/missing.ics")
	require.Error(t, err)
}
