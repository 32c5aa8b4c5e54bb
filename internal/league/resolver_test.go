package league

import (
	"context"
	"errors"
	"fmt"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/form"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/testutil"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeForms struct {
	options      []form.Option
	ignoreCreate bool
	submitErr    error
	loads        int
	submits      []url.Values
}

func (f *fakeForms) LoadForm(ctx context.Context, state *session.State, endpoint string) (form.Context, error) {
	f.loads++
	return form.Context{
		Selects: map[string]form.Select{
			"LeagueDropdownList": {Id: "LeagueDropdownList", Options: f.options},
		},
	}, nil
}

func (f *fakeForms) Submit(ctx context.Context, state *session.State, endpoint string, fields url.Values) (form.Result, error) {
	f.submits = append(f.submits, fields)
	if f.submitErr != nil {
		return form.Result{}, f.submitErr
	}
	if !f.ignoreCreate {
		f.options = append(f.options, form.Option{
			Value: fmt.Sprint(30000 + len(f.options)),
			Text:  fields.Get(FIELD_LEAGUE_NAME),
		})
	}
	return form.Result{}, nil
}

func options(texts ...string) []form.Option {
	out := []form.Option{{Value: "0", Text: "Valitse sarja"}}
	for i, t := range texts {
		out = append(out, form.Option{Value: fmt.Sprint(100 + i), Text: t})
	}
	return out
}

func TestResolve(t *testing.T) {
	testCases := []struct {
		name     string
		options  []form.Option
		label    string
		expected League
		created  bool
	}{
		{
			name:     "prefix of five matches",
			options:  options("U13 A-sarja", "U15 B-sarja"),
			label:    "U13 A",
			expected: League{Id: "100", Name: "U13 A-sarja"},
		},
		{
			name:     "case and surrounding space are ignored",
			options:  options("U15 B-sarja", "u13 a-sarja"),
			label:    "  U13 A ",
			expected: League{Id: "101", Name: "u13 a-sarja"},
		},
		{
			name:     "first option wins a tie",
			options:  options("U13 A-sarja", "U13 A-lohko"),
			label:    "U13 A",
			expected: League{Id: "100", Name: "U13 A-sarja"},
		},
		{
			name:     "prefix of four creates a league",
			options:  options("U13 A-sarja", "U15 B-sarja"),
			label:    "U13 B",
			expected: League{Id: "30003", Name: "U13 B"},
			created:  true,
		},
		{
			name:     "empty portal creates a league",
			options:  options(),
			label:    "Harjoitusottelut",
			expected: League{Id: "30001", Name: "Harjoitusottelut"},
			created:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			forms := &fakeForms{options: tc.options}
			resolver := NewResolver(forms, DefaultOptions(), &telemetry.Recorder{})

			league, err := resolver.Resolve(context.Background(), &session.State{}, tc.label)
			require.NoError(t, err)
			require.Equal(t, tc.expected, league)

			if tc.created {
				require.Len(t, forms.submits, 1)
				require.Equal(t, 2, forms.loads)
			} else {
				require.Empty(t, forms.submits)
				require.Equal(t, 1, forms.loads)
			}
		})
	}
}

func TestResolveCreatesOnlyOnce(t *testing.T) {
	forms := &fakeForms{options: options("U15 B-sarja"), ignoreCreate: true}
	tel := &telemetry.Recorder{}
	resolver := NewResolver(forms, DefaultOptions(), tel)

	_, err := resolver.Resolve(context.Background(), &session.State{}, "U11 Kilpa")
	require.ErrorIs(t, err, ErrLeagueNotCreated)
	require.Len(t, forms.submits, 1)
	require.Equal(t, 2, forms.loads)
	require.NotEmpty(t, tel.Find("broken", report_resolver_create))
}

func TestResolveCreationRejected(t *testing.T) {
	forms := &fakeForms{
		options:   options("U15 B-sarja"),
		submitErr: &form.RemoteValidationError{Message: "Nimi on jo käytössä"},
	}
	resolver := NewResolver(forms, DefaultOptions(), &telemetry.Recorder{})

	_, err := resolver.Resolve(context.Background(), &session.State{}, "U11 Kilpa")
	var rejected *form.RemoteValidationError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, 1, forms.loads)
}

func TestResolveMissingSelect(t *testing.T) {
	resolver := NewResolver(missingSelect{}, DefaultOptions(), &telemetry.Recorder{})
	_, err := resolver.Resolve(context.Background(), &session.State{}, "U13 A")
	require.ErrorIs(t, err, form.ErrFormParsing)
}

type missingSelect struct{}

func (missingSelect) LoadForm(context.Context, *session.State, string) (form.Context, error) {
	return form.Context{}, nil
}

func (missingSelect) Submit(context.Context, *session.State, string, url.Values) (form.Result, error) {
	return form.Result{}, nil
}

func TestResolveAgainstPortal(t *testing.T) {
	portal := testutil.NewFakePortal(t)
	tel := &telemetry.Recorder{}
	manager := session.NewManager(session.Options{
		AuthUrl:           portal.AuthUrl(),
		LockerroomUrl:     portal.LockerroomUrl(),
		AdminLinkUrl:      portal.AdminLinkUrl(),
		RequestsPerSecond: 100,
	}, clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)), tel)

	ctx := context.Background()
	state, err := manager.Login(ctx, session.Credentials{Username: portal.Username, Password: portal.Password})
	require.NoError(t, err)

	resolver := NewResolver(form.NewScraper(manager, tel), DefaultOptions(), tel)

	league, err := resolver.Resolve(ctx, state, "U13 A")
	require.NoError(t, err)
	require.Equal(t, League{Id: "15449", Name: "U13 A-sarja"}, league)

	league, err = resolver.Resolve(ctx, state, "U11 Kilpa")
	require.NoError(t, err)
	require.Equal(t, "U11 Kilpa", league.Name)
	require.Len(t, portal.PostsTo("Leagues/League.aspx"), 1)
}
