// Package calendar reads the club's public iCalendar feed, whose event
// descriptions carry the notes the admin portal's game list does not show.
package calendar

import (
	"bytes"
	"context"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/reconcile"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamesync.calendar")

const report_feed_parse = "feed.parse"

// DefaultKeyword marks the calendar events that are games.
const DefaultKeyword = "Ottelu"

type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
}

type Feed struct {
	http    *resty.Client
	keyword string
	tel     telemetry.API
}

func NewFeed(keyword string, timeout time.Duration, tel telemetry.API) Feed {
	assert.NotNil(tel)
	if keyword == "" {
		keyword = DefaultKeyword
	}
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	tel = telemetry.NewScopedAPI("calendar", tel)

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("accept", "text/calendar")
	telemetry.InstrumentResty(client, tel)

	return Feed{http: client, keyword: keyword, tel: tel}
}

// Fetch downloads the feed at url and returns its game events.
func (f Feed) Fetch(ctx context.Context, url string) ([]Event, error) {
	ctx, span := tracer.Start(ctx, "feed:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	res, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if res.IsError() {
		err = fmt.Errorf("fetch calendar: unexpected status %s", res.Status())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	events, err := Parse(res.Body(), f.keyword)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse")
		f.tel.ReportBroken(report_feed_parse, err, url)
		return nil, err
	}
	return events, nil
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func propertyText(event *ics.VEvent, property ics.ComponentProperty) string {
	prop := event.GetProperty(property)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(textUnescaper.Replace(prop.Value))
}

// Parse returns the events of an iCalendar document whose summary contains keyword.
func Parse(document []byte, keyword string) ([]Event, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	keyword = strings.ToLower(keyword)
	var events []Event
	for _, e := range cal.Events() {
		summary := propertyText(e, ics.ComponentPropertySummary)
		if !strings.Contains(strings.ToLower(summary), keyword) {
			continue
		}
		event := Event{
			UID:         strings.TrimSpace(e.Id()),
			Summary:     summary,
			Description: propertyText(e, ics.ComponentPropertyDescription),
			Location:    propertyText(e, ics.ComponentPropertyLocation),
		}
		start, err := e.GetStartAt()
		if err == nil {
			event.Start = start
		}
		events = append(events, event)
	}
	return events, nil
}

func uidKey(uid string) string {
	key, _, _ := strings.Cut(strings.TrimSpace(uid), "@")
	return key
}

// MergeNotes copies each event's description into the notes of the entry with
// the same uid. The feed may qualify uids with a domain ("123@host"), which is
// ignored. Entries are returned as a new slice.
func MergeNotes(entries []reconcile.InternalEntry, events []Event) []reconcile.InternalEntry {
	descriptions := make(map[string]string, len(events))
	for _, e := range events {
		if e.UID == "" || e.Description == "" {
			continue
		}
		descriptions[uidKey(e.UID)] = e.Description
	}

	out := make([]reconcile.InternalEntry, len(entries))
	for i, entry := range entries {
		if desc, ok := descriptions[uidKey(entry.UID)]; ok {
			entry.Notes = desc
		}
		out[i] = entry
	}
	return out
}
