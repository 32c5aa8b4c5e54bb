package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	FakePortalRoot = "/Admin/HockeyPox2020/"

	fakeSessionCookie = "ASP.NET_SessionId"
	gameFieldPrefix   = "ctl00$MainContentPlaceHolder$GamesBasicForm$"
	leagueFieldPrefix = "ctl00$MainContentPlaceHolder$LeagueForm$"
)

type FakeTeam struct {
	MetadataId string `json:"metadataId"`
	Name       string `json:"name"`
	IsAdmin    bool   `json:"isAdmin"`
}

type FakeOption struct {
	Value string
	Text  string
}

type FakeGame struct {
	Id         string
	League     string
	Event      string
	Home       string
	Guest      string
	Away       bool
	Location   string
	Date       string
	Time       string
	Duration   string
	PublicInfo string
}

type FakePost struct {
	Path  string
	Query url.Values
	Form  url.Values
}

// FakePortal is an in-process imitation of the club admin portal and the account
// service in front of it, good enough to drive the whole login and form flow.
type FakePortal struct {
	Server *httptest.Server

	mutex sync.Mutex

	Username string
	Password string
	Teams    []FakeTeam

	Leagues []FakeOption
	Events  []FakeOption
	Games   []FakeGame
	Posts   []FakePost

	// FailRedeem makes the one-time admin url bounce to the login page.
	FailRedeem bool
	// RejectMessage makes every game submission fail with this message.
	RejectMessage string
	// IgnoreLeagueCreation makes the league form accept posts without creating anything.
	IgnoreLeagueCreation bool
	// OmitEventValidation drops one of the token fields from every form page.
	OmitEventValidation bool

	Logins       int
	TokenIssued  int
	sessions     map[string]string
	nextSession  int
	nextGameId   int
	nextLeagueId int
}

func NewFakePortal(t testing.TB) *FakePortal {
	p := &FakePortal{
		Username: "manager@example.com",
		Password: "hunter2",
		Teams: []FakeTeam{
			{MetadataId: "team-1", Name: "Kiekko Juniorit", IsAdmin: false},
			{MetadataId: "club-1", Name: "S-Kiekko", IsAdmin: true},
		},
		Leagues: []FakeOption{
			{Value: "0", Text: "Valitse sarja"},
			{Value: "15449", Text: "U13 A-sarja"},
			{Value: "15460", Text: "U15 B-sarja"},
		},
		Events: []FakeOption{
			{Value: "", Text: "Ei tapahtumaa"},
			{Value: "77", Text: "Kotiottelu"},
		},
		sessions:     make(map[string]string),
		nextGameId:   100,
		nextLeagueId: 20000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/token", p.handleToken)
	mux.HandleFunc("/api/lockerroom", p.handleLockerroom)
	mux.HandleFunc("/api/admin-link", p.handleAdminLink)
	mux.HandleFunc("/adminlogin", p.handleRedeem)
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form><input name="UsernameTextBox"></form></body></html>`)
	})
	mux.HandleFunc(FakePortalRoot, p.handlePortal)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *FakePortal) AuthUrl() string       { return p.Server.URL + "/api/auth/token" }
func (p *FakePortal) LockerroomUrl() string { return p.Server.URL + "/api/lockerroom" }
func (p *FakePortal) AdminLinkUrl() string  { return p.Server.URL + "/api/admin-link" }

// ExpireSessions forgets every portal session, the next portal request of any
// client lands on the login page.
func (p *FakePortal) ExpireSessions() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions = make(map[string]string)
}

func (p *FakePortal) LoginCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.Logins
}

func (p *FakePortal) PostsTo(path string) []FakePost {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []FakePost
	for _, post := range p.Posts {
		if strings.HasSuffix(post.Path, path) {
			out = append(out, post)
		}
	}
	return out
}

func (p *FakePortal) Game(id string) (FakeGame, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, g := range p.Games {
		if g.Id == id {
			return g, true
		}
	}
	return FakeGame{}, false
}

func (p *FakePortal) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.Logins++
	if body.Username != p.Username || body.Password != p.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	p.TokenIssued++
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  fmt.Sprintf("access-%d", p.TokenIssued),
		"refresh_token": fmt.Sprintf("refresh-%d", p.TokenIssued),
	})
}

func (p *FakePortal) authorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-")
}

func (p *FakePortal) handleLockerroom(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"teams": p.Teams})
}

func (p *FakePortal) handleAdminLink(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body struct {
		MetadataId string `json:"metadataId"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.MetadataId == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url": fmt.Sprintf("%s/adminlogin?key=%s", p.Server.URL, url.QueryEscape(body.MetadataId)),
	})
}

func (p *FakePortal) handleRedeem(w http.ResponseWriter, r *http.Request) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.FailRedeem {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	p.nextSession++
	id := fmt.Sprintf("session-%d", p.nextSession)
	p.sessions[id] = ""
	http.SetCookie(w, &http.Cookie{Name: fakeSessionCookie, Value: id, Path: "/"})
	http.Redirect(w, r, FakePortalRoot+"Default.aspx", http.StatusFound)
}

// handlePortal serves everything under the per-club root, it runs with the lock held.
func (p *FakePortal) handlePortal(w http.ResponseWriter, r *http.Request) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cookie, err := r.Cookie(fakeSessionCookie)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if _, ok := p.sessions[cookie.Value]; !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	session := cookie.Value

	page := strings.TrimPrefix(r.URL.Path, FakePortalRoot)
	switch page {
	case "Default.aspx":
		fmt.Fprintf(w, `<html><head><script type="text/javascript">
var siteConfig = { adminBaseUrl: '%s', lang: 'fi' };
</script></head><body>Hallinta</body></html>`, FakePortalRoot)
	case "Games/Games.aspx":
		p.renderGameList(w)
	case "Games/Game.aspx":
		if r.Method == http.MethodPost {
			p.postGame(w, r, session)
			return
		}
		p.renderGameForm(w, session, r.URL.Query().Get("gId"), "")
	case "Leagues/League.aspx":
		if r.Method == http.MethodPost {
			p.postLeague(w, r, session)
			return
		}
		p.renderLeagueForm(w, session)
	default:
		http.NotFound(w, r)
	}
}

func (p *FakePortal) issueTokens(session string) string {
	p.nextSession++
	viewstate := fmt.Sprintf("vs-%s-%d", session, p.nextSession)
	p.sessions[session] = viewstate

	validation := `<input type="hidden" name="__EVENTVALIDATION" id="__EVENTVALIDATION" value="ev-` + viewstate + `" />`
	if p.OmitEventValidation {
		validation = ""
	}
	return fmt.Sprintf(`<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="%s" />
<input type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" value="808BB379" />
%s`, viewstate, validation)
}

func (p *FakePortal) validTokens(r *http.Request, session string) bool {
	viewstate := r.PostForm.Get("__VIEWSTATE")
	return viewstate != "" &&
		viewstate == p.sessions[session] &&
		r.PostForm.Get("__EVENTVALIDATION") == "ev-"+viewstate &&
		r.PostForm.Get("__VIEWSTATEGENERATOR") == "808BB379"
}

func renderOptions(options []FakeOption, selected string) string {
	var b strings.Builder
	for _, o := range options {
		attr := ""
		if selected != "" && o.Value == selected {
			attr = ` selected="selected"`
		}
		fmt.Fprintf(&b, `<option%s value="%s">%s</option>`, attr, html.EscapeString(o.Value), html.EscapeString(o.Text))
	}
	return b.String()
}

func (p *FakePortal) findGame(id string) int {
	for i, g := range p.Games {
		if g.Id == id {
			return i
		}
	}
	return -1
}

func (p *FakePortal) renderGameForm(w http.ResponseWriter, session, gameId, errorMessage string) {
	game := FakeGame{Duration: "120"}
	if idx := p.findGame(gameId); idx >= 0 {
		game = p.Games[idx]
	}

	errorRegion := ""
	if errorMessage != "" {
		errorRegion = fmt.Sprintf(`<textarea id="ErrorTextBox" readonly>%s</textarea>`, html.EscapeString(errorMessage))
	}
	away := ""
	if game.Away {
		away = ` checked="checked"`
	}
	input := func(id, value string) string {
		return fmt.Sprintf(`<input name="%s%s" type="text" value="%s" id="%s" />`, gameFieldPrefix, id, html.EscapeString(value), id)
	}

	fmt.Fprintf(w, `<html><body><form method="post" id="form1">
%s
%s
<select name="ctl00$MenuContentPlaceHolder$MainMenu$SiteSelector1$DropDownListSeasons" id="DropDownListSeasons"><option selected="selected" value="547">2024-2025</option></select>
<select name="ctl00$MenuContentPlaceHolder$MainMenu$SiteSelector1$DropDownListSubSites" id="DropDownListSubSites"><option selected="selected" value="8787">U13 Punainen</option></select>
<span id="MainContentPlaceHolder_GamesBasicForm_SitenameLabel">S-Kiekko U13</span>
<select name="%sLeagueDropdownList" id="LeagueDropdownList">%s</select>
<select name="%sEventDropDownList" id="EventDropDownList">%s</select>
%s
<input name="%sAwayCheckbox" type="checkbox" id="AwayCheckbox"%s />
%s
%s
%s
%s
%s
<textarea name="%sGamePublicInfoTextBox" id="GamePublicInfoTextBox">%s</textarea>
<input type="submit" name="%sSaveGameButton" value="Tallenna" id="SaveGameButton" />
</form></body></html>`,
		errorRegion,
		p.issueTokens(session),
		gameFieldPrefix, renderOptions(p.Leagues, game.League),
		gameFieldPrefix, renderOptions(p.Events, game.Event),
		input("HomeTeamTextBox", game.Home),
		gameFieldPrefix, away,
		input("GuestTeamTextBox", game.Guest),
		input("GameLocationTextBox", game.Location),
		input("GameDateTextBox", game.Date),
		input("GameStartTimeTextBox", game.Time),
		input("GameDurationTextBox", game.Duration),
		gameFieldPrefix, html.EscapeString(game.PublicInfo),
		gameFieldPrefix,
	)
}

func (p *FakePortal) postGame(w http.ResponseWriter, r *http.Request, session string) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	p.Posts = append(p.Posts, FakePost{Path: r.URL.Path, Query: r.URL.Query(), Form: r.PostForm})

	if !p.validTokens(r, session) {
		http.Error(w, "Validation of viewstate MAC failed.", http.StatusInternalServerError)
		return
	}

	field := func(name string) string {
		return r.PostForm.Get(gameFieldPrefix + name)
	}
	gameId := r.URL.Query().Get("gId")

	message := p.RejectMessage
	if message == "" && (field("GameDateTextBox") == "" || field("HomeTeamTextBox") == "") {
		message = "Päivämäärä ja kotijoukkue ovat pakollisia kenttiä."
	}
	if message != "" {
		p.renderGameForm(w, session, gameId, message)
		return
	}

	game := FakeGame{
		League:     field("LeagueDropdownList"),
		Event:      field("EventDropDownList"),
		Home:       field("HomeTeamTextBox"),
		Guest:      field("GuestTeamTextBox"),
		Away:       field("AwayCheckbox") == "on",
		Location:   field("GameLocationTextBox"),
		Date:       field("GameDateTextBox"),
		Time:       field("GameStartTimeTextBox"),
		Duration:   field("GameDurationTextBox"),
		PublicInfo: field("GamePublicInfoTextBox"),
	}
	if idx := p.findGame(gameId); idx >= 0 {
		game.Id = gameId
		p.Games[idx] = game
	} else {
		p.nextGameId++
		game.Id = strconv.Itoa(p.nextGameId)
		p.Games = append(p.Games, game)
	}
	p.renderGameForm(w, session, game.Id, "")
}

func (p *FakePortal) leagueText(value string) string {
	for _, l := range p.Leagues {
		if l.Value == value {
			return l.Text
		}
	}
	return ""
}

// timeRange renders a start time and a duration in minutes the way the games
// list shows them, "18:00 - 20:00".
func timeRange(start, duration string) string {
	parsed, err := time.Parse("15:04", start)
	if err != nil {
		return start
	}
	minutes, err := strconv.Atoi(duration)
	if err != nil {
		return start
	}
	end := parsed.Add(time.Duration(minutes) * time.Minute)
	return start + " - " + end.Format("15:04")
}

func (p *FakePortal) renderGameList(w http.ResponseWriter) {
	var rows strings.Builder
	for _, g := range p.Games {
		teams := g.Home + " - " + g.Guest
		if g.Away {
			teams = g.Guest + " - " + g.Home
		}
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%s</td><td><a href="Game.aspx?gId=%s">%s</a></td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(g.Date),
			html.EscapeString(timeRange(g.Time, g.Duration)),
			g.Id,
			html.EscapeString(teams),
			html.EscapeString(g.Location),
			html.EscapeString(p.leagueText(g.League)),
		)
	}
	fmt.Fprintf(w, `<html><body><table id="GamesGrid">
<tr><th>Päivämäärä</th><th>Aika</th><th>Ottelu</th><th>Paikka</th><th>Sarja</th></tr>
%s
</table></body></html>`, rows.String())
}

func (p *FakePortal) renderLeagueForm(w http.ResponseWriter, session string) {
	fmt.Fprintf(w, `<html><body><form method="post">
%s
<input name="%sLeagueNameTextBox" type="text" id="LeagueNameTextBox" />
<input type="submit" name="%sSaveLeagueButton" value="Tallenna" id="SaveLeagueButton" />
</form></body></html>`, p.issueTokens(session), leagueFieldPrefix, leagueFieldPrefix)
}

func (p *FakePortal) postLeague(w http.ResponseWriter, r *http.Request, session string) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	p.Posts = append(p.Posts, FakePost{Path: r.URL.Path, Query: r.URL.Query(), Form: r.PostForm})

	if !p.validTokens(r, session) {
		http.Error(w, "Validation of viewstate MAC failed.", http.StatusInternalServerError)
		return
	}
	name := strings.TrimSpace(r.PostForm.Get(leagueFieldPrefix + "LeagueNameTextBox"))
	if name != "" && !p.IgnoreLeagueCreation {
		p.nextLeagueId++
		p.Leagues = append(p.Leagues, FakeOption{Value: strconv.Itoa(p.nextLeagueId), Text: name})
	}
	p.renderLeagueForm(w, session)
}
