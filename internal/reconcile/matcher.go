// Package reconcile pairs the games published by the results service with the
// entries of the club's admin portal and grades how well each pair agrees.
package reconcile

import (
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/lib/textutil"
	"slices"
	"strings"
	"time"
)

const reasonNotFound = "not found in internal system"

// Matcher reconciles external games against internal entries. It performs no I/O
// and keeps no state between calls.
type Matcher struct {
	weights Weights
	time    chrono.TimeAPI
}

func NewMatcher(time chrono.TimeAPI, weights Weights) Matcher {
	assert.NotNil(time)
	return Matcher{weights: weights, time: time}
}

type candidate struct {
	index         int
	score         int
	discrepancies int
	notes         []string
}

// Reconcile returns one MatchResult per external game that is managed and not
// older than yesterday, in input order. Each internal entry is paired with at most
// one game: games are processed in order and the chosen entry leaves the pool, so
// an earlier game wins a contested entry. The internal slice is not modified.
func (m Matcher) Reconcile(external []ExternalGame, internal []InternalEntry) []MatchResult {
	pool := slices.Clone(internal)
	yesterday := chrono.StartOfDay(m.time.Now()).AddDate(0, 0, -1)

	results := make([]MatchResult, 0, len(external))
	for _, game := range external {
		if game.Type == TYPE_FOLLOW {
			continue
		}

		date, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(game.Date), yesterday.Location())
		if err != nil {
			results = append(results, MatchResult{
				Game:   game,
				Status: STATUS_RED,
				Reason: fmt.Sprintf("invalid date %q", game.Date),
			})
			continue
		}
		if date.Before(yesterday) {
			continue
		}

		result, chosen := m.match(game, pool)
		if chosen >= 0 {
			pool = slices.Delete(pool, chosen, chosen+1)
		}
		results = append(results, result)
	}
	return results
}

func (m Matcher) match(game ExternalGame, pool []InternalEntry) (MatchResult, int) {
	var best *candidate
	for i, entry := range pool {
		if strings.TrimSpace(entry.Date) != strings.TrimSpace(game.Date) {
			continue
		}
		c := m.score(game, entry)
		c.index = i
		if best == nil || c.score > best.score {
			best = &c
		}
	}

	if best == nil {
		return MatchResult{
			Game:   game,
			Status: STATUS_RED,
			Reason: reasonNotFound,
		}, -1
	}

	entry := pool[best.index]
	result := MatchResult{
		Game:          game,
		Match:         &entry,
		Status:        STATUS_GREEN,
		Reason:        strings.Join(best.notes, "; "),
		Score:         best.score,
		Discrepancies: best.discrepancies,
	}
	if best.discrepancies > 0 {
		result.Status = STATUS_YELLOW
	}
	if best.score < m.weights.WarningScore {
		result.Warning = fmt.Sprintf("low confidence match (score %d), verify manually", best.score)
	}
	return result, best.index
}

// NormalizeTime turns the time spellings used by the two systems into HH:MM. A
// missing time or a literal midnight means the start time is not published. Of a
// range only the start counts.
func NormalizeTime(raw string) string {
	raw, _, _ = strings.Cut(raw, " - ")
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, ".", ":")
	if raw == "" || strings.EqualFold(raw, Unscheduled) {
		return Unscheduled
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		parsed, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		out := parsed.Format("15:04")
		if out == "00:00" {
			return Unscheduled
		}
		return out
	}
	return raw
}

func splitTeams(label string) (string, string) {
	home, away, found := strings.Cut(label, " - ")
	if !found {
		home, away, _ = strings.Cut(label, "-")
	}
	return strings.TrimSpace(home), strings.TrimSpace(away)
}

func (m Matcher) score(game ExternalGame, entry InternalEntry) candidate {
	w := m.weights
	c := candidate{score: w.DateMatch}
	discrepancy := func(format string, args ...any) {
		c.discrepancies++
		c.notes = append(c.notes, fmt.Sprintf(format, args...))
	}

	extTime := NormalizeTime(game.Time)
	intTime := NormalizeTime(entry.Time)
	switch {
	case extTime == intTime:
		c.score += w.TimeExact
	case extTime == Unscheduled && intTime == NormalizeTime(w.DefaultTime):
		c.score += w.TimeDefault
		discrepancy("start time is not published yet, internal entry uses the default %s", intTime)
	default:
		discrepancy("game starts at %s but internal entry says %s", extTime, intTime)
	}

	if textutil.Similarity(game.Location, entry.Location) >= w.LocationThreshold {
		c.score += w.LocationMatch

		extVenue, extOk := textutil.VenueNumber(game.Location)
		intVenue, intOk := textutil.VenueNumber(entry.Location)
		switch {
		case extOk && intOk && extVenue != intVenue:
			c.score -= w.VenuePenalty
			discrepancy("game is played at venue %d but internal entry says venue %d", extVenue, intVenue)
		case !extOk && intOk:
			c.score -= w.VenuePenalty
			discrepancy("internal entry names venue %d which %q does not", intVenue, game.Location)
		}
	} else {
		discrepancy("game is played at %q but internal entry says %q", game.Location, entry.Location)
	}

	home, away := splitTeams(entry.TeamsLabel)
	homeScore := textutil.Similarity(game.HomeTeam, home)
	awayScore := textutil.Similarity(game.AwayTeam, away)
	if homeScore >= w.TeamThreshold {
		c.score += w.TeamMatch
	} else {
		discrepancy("home team should be %q", game.HomeTeam)
	}
	if awayScore >= w.TeamThreshold {
		c.score += w.TeamMatch
	} else {
		discrepancy("away team should be %q", game.AwayTeam)
	}
	teamsStrong := homeScore >= w.TeamBonusThreshold && awayScore >= w.TeamBonusThreshold
	if teamsStrong {
		c.score += w.TeamBonus
	}

	mentioned := textutil.ContainsAny(entry.Notes+" "+entry.League, w.SmallPitchKeywords)
	switch {
	case game.SmallAreaGame && mentioned:
		c.score += w.SmallPitchMatch
	case game.SmallAreaGame:
		discrepancy("small-pitch game is not marked as such")
	case mentioned && teamsStrong:
		c.score -= w.SmallPitchPenalty
	}

	return c
}
