package telemetry

import (
	"fmt"
)

// API is what every component reports through. SlogAPI writes the reports to the
// log, tests pass a Recorder and look reports up by kind and id.
//
// Report ids are `<component>.<operation>`, lowercase, with dashes inside the
// operation: `conn.list-games`, `scraper.load-form`, `sync.missing`. Packages
// keep them in `report_*` constants next to the code that reports. The package
// name is not part of the id, constructors wrap the api in a ScopedAPI for that,
// so a portal failure ends up as `portal: conn.create`.
type API interface {
	// ReportBroken reports a failed operation the caller could not recover from,
	// a portal that is down or a page that no longer parses. params carry the
	// error and whatever identifies the item (game id, team id, url).
	ReportBroken(id string, params ...any)

	// ReportWarning reports something a person should look at but that did not
	// stop the pass: a rejected submission, a game missing from the portal, a
	// changed start time.
	ReportWarning(id string, params ...any)

	// ReportDebug traces the flow: requests, relogins, resolver decisions.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many items an operation handled in one go, games
	// created or results per status. Counts are samples, not running totals.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, usually the package name.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
