package portal

import (
	"bytes"
	"context"
	"fmt"
	"gamesync-backend/internal/form"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/htmlutil"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	column_date     = "päivämäärä"
	column_time     = "aika"
	column_teams    = "ottelu"
	column_location = "paikka"
	column_league   = "sarja"
)

var listColumns = []string{column_date, column_time, column_teams, column_location, column_league}

// headerColumns maps the known column keywords to their index in the header row.
// "aika" is also a substring of "paikka", so exact matches win over prefixes.
func headerColumns(header *goquery.Selection) map[string]int {
	columns := make(map[string]int)
	cells := header.Find("th, td")
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(htmlutil.SelectionText(cell))
		for _, key := range listColumns {
			if text == key {
				columns[key] = i
			}
		}
	})
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(htmlutil.SelectionText(cell))
		for _, key := range listColumns {
			if _, ok := columns[key]; !ok && strings.HasPrefix(text, key) {
				columns[key] = i
			}
		}
	})
	return columns
}

// startTime keeps the start of a "18:00 - 19:30" range.
func startTime(raw string) string {
	start, _, _ := strings.Cut(raw, " - ")
	return strings.TrimSpace(start)
}

func isoDate(raw string) string {
	parsed, err := time.Parse(portalDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return parsed.Format(time.DateOnly)
}

func parseGameList(res session.Response) ([]reconcile.InternalEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}

	var header *goquery.Selection
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if row.Find("th").Length() > 0 {
			header = row
			return false
		}
		return true
	})
	if header == nil {
		return nil, fmt.Errorf("%w: games list has no header row", form.ErrFormParsing)
	}
	columns := headerColumns(header)
	for _, key := range []string{column_date, column_teams} {
		if _, ok := columns[key]; !ok {
			return nil, fmt.Errorf("%w: games list has no %q column", form.ErrFormParsing, key)
		}
	}

	cell := func(cells *goquery.Selection, key string) string {
		idx, ok := columns[key]
		if !ok || idx >= cells.Length() {
			return ""
		}
		return htmlutil.SelectionText(cells.Eq(idx))
	}

	entries := []reconcile.InternalEntry{}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		anchors := htmlutil.GetAnchors(res.URL, row.Find("a[href]"))
		uid := ""
		for _, a := range anchors {
			if id := a.Url.Query().Get("gId"); id != "" {
				uid = id
				break
			}
		}
		if uid == "" {
			return
		}

		cells := row.Find("td")
		entries = append(entries, reconcile.InternalEntry{
			UID:        uid,
			Date:       isoDate(cell(cells, column_date)),
			Time:       startTime(cell(cells, column_time)),
			TeamsLabel: cell(cells, column_teams),
			Location:   cell(cells, column_location),
			League:     cell(cells, column_league),
		})
	})
	return entries, nil
}

// ListGames returns every game in the portal's games list, dates as YYYY-MM-DD.
func (c *Conn) ListGames(ctx context.Context) ([]reconcile.InternalEntry, error) {
	ctx, span := tracer.Start(ctx, "conn:ListGames")
	defer span.End()

	var entries []reconcile.InternalEntry
	err := c.withSession(ctx, func(state *session.State) error {
		res, err := c.portal.sessions.Get(ctx, state, c.portal.opts.GamesListPath)
		if err != nil {
			return err
		}
		if res.Status != 200 {
			return fmt.Errorf("list games: unexpected status %d", res.Status)
		}
		entries, err = parseGameList(res)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.portal.tel.ReportBroken(report_conn_list, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("games", len(entries)))
	return entries, nil
}

// GameDetails is a game as its edit form shows it.
type GameDetails struct {
	UID      string `json:"uid"`
	SiteName string `json:"site_name"`

	League        form.Option   `json:"league"`
	LeagueOptions []form.Option `json:"league_options"`
	Event         form.Option   `json:"event"`
	EventOptions  []form.Option `json:"event_options"`

	HomeTeam   string `json:"home_team"`
	GuestTeam  string `json:"guest_team"`
	Away       bool   `json:"away"`
	Location   string `json:"location"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	Duration   string `json:"duration"`
	PublicInfo string `json:"public_info"`
}

const (
	labelSiteName = "MainContentPlaceHolder_GamesBasicForm_SitenameLabel"
	selectLeague  = "LeagueDropdownList"
	selectEvent   = "EventDropDownList"
)

func detailsFromForm(uid string, page form.Context) (GameDetails, error) {
	leagues, err := page.Select(selectLeague)
	if err != nil {
		return GameDetails{}, err
	}
	events, err := page.Select(selectEvent)
	if err != nil {
		return GameDetails{}, err
	}
	league, _ := leagues.Selected()
	event, _ := events.Selected()

	return GameDetails{
		UID:           uid,
		SiteName:      page.Labels[labelSiteName],
		League:        league,
		LeagueOptions: leagues.Options,
		Event:         event,
		EventOptions:  events.Options,
		HomeTeam:      page.Inputs["HomeTeamTextBox"],
		GuestTeam:     page.Inputs["GuestTeamTextBox"],
		Away:          page.Checkboxes["AwayCheckbox"],
		Location:      page.Inputs["GameLocationTextBox"],
		Date:          page.Inputs["GameDateTextBox"],
		StartTime:     page.Inputs["GameStartTimeTextBox"],
		Duration:      page.Inputs["GameDurationTextBox"],
		PublicInfo:    page.TextAreas["GamePublicInfoTextBox"],
	}, nil
}

// GameDetails reads the edit form of game uid.
func (c *Conn) GameDetails(ctx context.Context, uid string) (GameDetails, error) {
	ctx, span := tracer.Start(ctx, "conn:GameDetails")
	defer span.End()
	span.SetAttributes(attribute.String("uid", uid))

	var details GameDetails
	err := c.withSession(ctx, func(state *session.State) error {
		page, err := c.portal.forms.LoadForm(ctx, state, gameEndpoint(c.portal.opts.GameFormPath, uid))
		if err != nil {
			return err
		}
		details, err = detailsFromForm(uid, page)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.portal.tel.ReportBroken(report_conn_details, err, uid)
		return GameDetails{}, err
	}
	return details, nil
}
