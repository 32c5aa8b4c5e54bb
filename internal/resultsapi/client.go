// Package resultsapi is a client for the public results service that publishes the
// authoritative schedules.
package resultsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/telemetry"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("gamesync.resultsapi")

const DefaultBaseUrl = "https://tulospalvelu.leijonat.fi/"

type Options struct {
	BaseUrl           string        `json:"base_url"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
}

type Client struct {
	http *resty.Client
}

func NewClient(opts Options, tel telemetry.API) Client {
	assert.NotNil(tel)
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 4
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(int(opts.RequestsPerSecond), 1))

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseUrl, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetHeader("accept", "application/json")
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("resultsapi", tel))

	return Client{http: client}
}

func post[Output any](ctx context.Context, client *resty.Client, name, endpoint string, form url.Values) (Output, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("resultsapi:%s", name))
	defer span.End()
	span.SetAttributes(attribute.String("form", form.Encode()))

	var out Output

	res, err := client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return out, err
	}
	if res.IsError() {
		err = fmt.Errorf("%s: unexpected status %s", name, res.Status())
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	err = json.Unmarshal(res.Body(), &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse json response")
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Levels lists the levels (age groups and series) of a season.
func (c Client) Levels(ctx context.Context, season string) ([]Level, error) {
	return post[[]Level](ctx, c.http, "Levels", "/helpers/getLevels.php", url.Values{
		"season": {season},
	})
}

// StatGroups lists the stat groups (divisions) of a level.
func (c Client) StatGroups(ctx context.Context, season, levelId, districtId string) ([]StatGroup, error) {
	if districtId == "" {
		districtId = "0"
	}
	return post[[]StatGroup](ctx, c.http, "StatGroups", "/serie/helpers/getStatGroups.php", url.Values{
		"season":     {season},
		"levelid":    {levelId},
		"districtid": {districtId},
	})
}

// Teams lists the teams playing in a stat group.
func (c Client) Teams(ctx context.Context, season, statGroupId string) ([]Team, error) {
	group, err := post[statGroupResponse](ctx, c.http, "Teams", "/serie/helpers/getStatGroup.php", url.Values{
		"season": {season},
		"stgid":  {statGroupId},
	})
	if err != nil {
		return nil, err
	}
	return group.Teams, nil
}

type GamesQuery struct {
	Season      string
	StatGroupId string
	TeamId      string
	DistrictId  string
	// GameDays is how many game days around From the service returns.
	GameDays int
	From     time.Time
	// Dwl is passed through as is, the service uses 0 for regular listings.
	Dwl int
}

// Games returns the games of one team.
func (c Client) Games(ctx context.Context, query GamesQuery) ([]Game, error) {
	districtId := query.DistrictId
	if districtId == "" {
		districtId = "0"
	}
	form := url.Values{
		"dwl":        {strconv.Itoa(query.Dwl)},
		"season":     {query.Season},
		"stgid":      {query.StatGroupId},
		"teamid":     {query.TeamId},
		"districtid": {districtId},
		"gamedays":   {strconv.Itoa(query.GameDays)},
	}
	if !query.From.IsZero() {
		form.Set("dog", query.From.Format(time.DateOnly))
	}

	levels, err := post[[]gamesLevel](ctx, c.http, "Games", "/helpers/getGames.php", form)
	if err != nil {
		return nil, err
	}

	var games []Game
	for _, level := range levels {
		games = append(games, level.Games...)
	}
	return games, nil
}
