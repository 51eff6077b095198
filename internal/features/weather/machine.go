// ABOUTME: Weather conversation machine: lookups, forecasts, alerts, settings
// ABOUTME: History-backed city menus short-circuit straight to the answer

package weather

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// Name is the conversation type this machine registers under.
const Name = "weather"

// Weather conversation states.
const (
	StateMain = iota
	StateCurrent
	StateCurrentNew
	StateForecast
	StateForecastNew
	StateAlerts
	StateAlertNew
	StateAlertDelete
	StateSettings
	StateLanguage
	StateUnits
)

// New builds the weather machine over a data provider and the language
// catalog (needed for the settings menu).
func New(provider Provider, catalog *i18n.Catalog) *fsm.Machine {
	b := &builder{provider: provider, catalog: catalog}

	return &fsm.Machine{
		Name:    Name,
		Initial: StateMain,
		Menu:    b.menu,
		Rules: map[int][]fsm.Rule{
			StateMain: {
				{When: fsm.Label("weather.menu.current"), Do: b.startLookup(StateCurrent, StateCurrentNew)},
				{When: fsm.Label("weather.menu.forecast"), Do: b.startLookup(StateForecast, StateForecastNew)},
				{When: fsm.Label("weather.menu.alerts"), Do: b.showAlertsMenu},
				{When: fsm.Label("weather.menu.settings"), Do: b.showSettingsMenu},
			},
			StateCurrent: {
				{When: fsm.Label("weather.new_city"), Do: b.askCity(StateCurrentNew)},
				{When: fsm.Label("menu.back"), Do: b.backToMain},
				{When: fsm.Location(), Do: b.answerByLocation(current)},
				{When: b.recentCity, Do: b.answerRecent(current)},
			},
			StateCurrentNew: {
				{When: fsm.Reply(), Do: b.answerTyped(current)},
				{When: fsm.Location(), Do: b.answerByLocation(current)},
			},
			StateForecast: {
				{When: fsm.Label("weather.new_city"), Do: b.askCity(StateForecastNew)},
				{When: fsm.Label("menu.back"), Do: b.backToMain},
				{When: fsm.Location(), Do: b.answerByLocation(forecast)},
				{When: b.recentCity, Do: b.answerRecent(forecast)},
			},
			StateForecastNew: {
				{When: fsm.Reply(), Do: b.answerTyped(forecast)},
				{When: fsm.Location(), Do: b.answerByLocation(forecast)},
			},
			StateAlerts: {
				{When: fsm.Label("weather.alerts.new"), Do: b.askCity(StateAlertNew)},
				{When: fsm.Label("weather.alerts.delete"), Do: b.showAlertDeleteMenu},
				{When: fsm.Label("menu.back"), Do: b.backToMain},
			},
			StateAlertNew: {
				{When: fsm.Reply(), Do: b.createAlert},
			},
			StateAlertDelete: {
				{When: fsm.Label("menu.back"), Do: b.backToMain},
				{When: b.alertName, Do: b.deleteAlert},
			},
			StateSettings: {
				{When: fsm.Label("settings.language"), Do: b.showLanguageMenu},
				{When: fsm.Label("settings.units"), Do: b.showUnitsMenu},
				{When: fsm.Label("menu.back"), Do: b.backToMain},
			},
			StateLanguage: {
				{When: b.supportedLanguage, Do: b.setLanguage},
				{When: fsm.Label("menu.back"), Do: b.backToSettings},
			},
			StateUnits: {
				{When: fsm.Label("settings.units.metric"), Do: b.setUnits(store.UnitsMetric)},
				{When: fsm.Label("settings.units.imperial"), Do: b.setUnits(store.UnitsImperial)},
				{When: fsm.Label("menu.back"), Do: b.backToSettings},
			},
		},
	}
}

// lookupMode selects which provider call answers a city query.
type lookupMode int

const (
	current lookupMode = iota
	forecast
)

type builder struct {
	provider Provider
	catalog  *i18n.Catalog
}

func (b *builder) menu(ctx context.Context, c *fsm.Context, code int) [][]string {
	switch code {
	case StateMain:
		return [][]string{
			{c.Loc.T("weather.menu.current"), c.Loc.T("weather.menu.forecast")},
			{c.Loc.T("weather.menu.alerts"), c.Loc.T("weather.menu.settings")},
		}
	case StateCurrent, StateForecast:
		return b.cityMenu(ctx, c)
	case StateAlerts:
		return [][]string{
			{c.Loc.T("weather.alerts.new"), c.Loc.T("weather.alerts.delete")},
			{c.Loc.T("menu.back")},
		}
	case StateAlertDelete:
		return b.alertMenu(ctx, c)
	case StateSettings:
		return [][]string{
			{c.Loc.T("settings.language"), c.Loc.T("settings.units")},
			{c.Loc.T("menu.back")},
		}
	case StateLanguage:
		return b.languageMenu(ctx, c)
	case StateUnits:
		return [][]string{
			{c.Loc.T("settings.units.metric"), c.Loc.T("settings.units.imperial")},
			{c.Loc.T("menu.back")},
		}
	default:
		return nil
	}
}

// cityMenu lists the user's recent lookups one per row, then the new-city
// and back options. Reads may fail; a menu without history is still usable.
func (b *builder) cityMenu(ctx context.Context, c *fsm.Context) [][]string {
	var rows [][]string
	if recent, err := c.Store.ListRecent(ctx, c.Key.UserID); err == nil {
		for _, r := range recent {
			rows = append(rows, []string{r.SubjectName})
		}
	}
	rows = append(rows, []string{c.Loc.T("weather.new_city")})
	rows = append(rows, []string{c.Loc.T("menu.back")})
	return rows
}

func (b *builder) alertMenu(ctx context.Context, c *fsm.Context) [][]string {
	var rows [][]string
	if alerts, err := c.Store.ListAlerts(ctx, c.Key.UserID); err == nil {
		for _, a := range alerts {
			rows = append(rows, []string{a.SubjectName})
		}
	}
	rows = append(rows, []string{c.Loc.T("menu.back")})
	return rows
}

func (b *builder) languageMenu(ctx context.Context, c *fsm.Context) [][]string {
	var rows [][]string
	for _, code := range b.catalog.Languages() {
		rows = append(rows, []string{code})
	}
	rows = append(rows, []string{c.Loc.T("menu.back")})
	return rows
}

// recentCity matches text equal to one of the user's recent lookup names.
func (b *builder) recentCity(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) bool {
	if ev.Kind != remote.KindText || ev.Text == "" {
		return false
	}
	recent, err := c.Store.ListRecent(ctx, c.Key.UserID)
	if err != nil {
		return false
	}
	for _, r := range recent {
		if r.SubjectName == ev.Text {
			return true
		}
	}
	return false
}

// alertName matches text equal to one of the user's alert subjects.
func (b *builder) alertName(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) bool {
	if ev.Kind != remote.KindText || ev.Text == "" {
		return false
	}
	alerts, err := c.Store.ListAlerts(ctx, c.Key.UserID)
	if err != nil {
		return false
	}
	for _, a := range alerts {
		if a.SubjectName == ev.Text {
			return true
		}
	}
	return false
}

func (b *builder) supportedLanguage(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) bool {
	return ev.Kind == remote.KindText && b.catalog.Supported(ev.Text)
}

// startLookup opens a lookup flow. With history the user picks from the
// recent menu; without it the machine goes straight to asking for a city.
func (b *builder) startLookup(pickState, askState int) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		recent, err := c.Store.ListRecent(ctx, c.Key.UserID)
		if err != nil {
			return fsm.Outcome{}, err
		}
		if len(recent) == 0 {
			return fsm.Outcome{
				Next:      fsm.State{Code: askState},
				Responses: []fsm.Response{{Text: c.Loc.T("weather.ask_city"), AwaitReply: true}},
			}, nil
		}
		return fsm.Outcome{
			Next: fsm.State{Code: pickState},
			Responses: []fsm.Response{{
				Text:     c.Loc.T("weather.pick_city"),
				Keyboard: b.cityMenu(ctx, c),
			}},
		}, nil
	}
}

func (b *builder) askCity(askState int) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		return fsm.Outcome{
			Next:      fsm.State{Code: askState},
			Responses: []fsm.Response{{Text: c.Loc.T("weather.ask_city"), AwaitReply: true}},
		}, nil
	}
}

func (b *builder) backToMain(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateMain, fsm.Response{
		Text:     c.Loc.T("menu.main"),
		Keyboard: b.menu(ctx, c, StateMain),
	}), nil
}

func (b *builder) backToSettings(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateSettings, fsm.Response{
		Text:     c.Loc.T("settings.menu"),
		Keyboard: b.menu(ctx, c, StateSettings),
	}), nil
}

// answer resolves a city query through the provider and builds the terminal
// outcome: report, history effect, back to the main menu. A provider failure
// keeps the current state so the user can retry in place.
func (b *builder) answer(ctx context.Context, c *fsm.Context, st fsm.State, mode lookupMode, query string, loc *remote.Location) (fsm.Outcome, error) {
	units := c.Prefs.Units

	var cond *Conditions
	var err error
	switch {
	case loc != nil:
		cond, err = b.provider.CurrentByLocation(ctx, loc.Latitude, loc.Longitude, units)
	case mode == forecast:
		cond, err = b.provider.Forecast(ctx, query, units)
	default:
		cond, err = b.provider.Current(ctx, query, units)
	}
	if err != nil {
		return fsm.Stay(st, fsm.Response{Text: c.Loc.T("fetch_failed")}), nil
	}

	reportKey := "weather.current_report"
	if mode == forecast {
		reportKey = "weather.forecast_report"
	}

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf(reportKey, cond.SubjectName, cond.Summary),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.RecordRecent{
			UserID:      c.Key.UserID,
			SubjectID:   cond.SubjectID,
			SubjectName: cond.SubjectName,
		}},
	}, nil
}

func (b *builder) answerTyped(mode lookupMode) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		return b.answer(ctx, c, st, mode, ev.Text, nil)
	}
}

func (b *builder) answerRecent(mode lookupMode) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		return b.answer(ctx, c, st, mode, ev.Text, nil)
	}
}

func (b *builder) answerByLocation(mode lookupMode) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		return b.answer(ctx, c, st, mode, "", ev.Location)
	}
}

func (b *builder) showAlertsMenu(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateAlerts, fsm.Response{
		Text:     c.Loc.T("weather.alerts.menu"),
		Keyboard: b.menu(ctx, c, StateAlerts),
	}), nil
}

func (b *builder) showAlertDeleteMenu(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	alerts, err := c.Store.ListAlerts(ctx, c.Key.UserID)
	if err != nil {
		return fsm.Outcome{}, err
	}
	if len(alerts) == 0 {
		return fsm.Goto(StateMain, fsm.Response{
			Text:     c.Loc.T("weather.alerts.none"),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}
	return fsm.Goto(StateAlertDelete, fsm.Response{
		Text:     c.Loc.T("weather.alerts.pick_delete"),
		Keyboard: b.alertMenu(ctx, c),
	}), nil
}

// createAlert resolves the replied city and stores a scheduled alert for it.
func (b *builder) createAlert(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	cond, err := b.provider.Current(ctx, ev.Text, c.Prefs.Units)
	if err != nil {
		return fsm.Stay(st, fsm.Response{Text: c.Loc.T("fetch_failed")}), nil
	}

	existing, err := c.Store.ListAlerts(ctx, c.Key.UserID)
	if err != nil {
		return fsm.Outcome{}, err
	}
	for _, a := range existing {
		if a.SubjectID == cond.SubjectID || a.SubjectName == cond.SubjectName {
			return fsm.Goto(StateMain, fsm.Response{
				Text:     c.Loc.Tf("weather.alerts.exists", cond.SubjectName),
				Keyboard: b.menu(ctx, c, StateMain),
			}), nil
		}
	}

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf("weather.alerts.created", cond.SubjectName),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.SaveAlert{Alert: &store.Alert{
			ID:          uuid.New().String(),
			UserID:      c.Key.UserID,
			SubjectID:   cond.SubjectID,
			SubjectName: cond.SubjectName,
			CreatedAt:   time.Now().UTC(),
		}}},
	}, nil
}

func (b *builder) deleteAlert(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	alerts, err := c.Store.ListAlerts(ctx, c.Key.UserID)
	if err != nil {
		return fsm.Outcome{}, err
	}
	for _, a := range alerts {
		if a.SubjectName == ev.Text {
			return fsm.Outcome{
				Next: fsm.State{Code: StateMain},
				Responses: []fsm.Response{{
					Text:     c.Loc.Tf("weather.alerts.deleted", a.SubjectName),
					Keyboard: b.menu(ctx, c, StateMain),
				}},
				Effects: []fsm.Effect{fsm.RemoveAlert{ID: a.ID}},
			}, nil
		}
	}
	// Raced with another deletion; reprompt
	return fsm.Stay(st, fsm.Response{
		Text:     c.Loc.T("weather.alerts.pick_delete"),
		Keyboard: b.alertMenu(ctx, c),
	}), nil
}

func (b *builder) showSettingsMenu(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateSettings, fsm.Response{
		Text:     c.Loc.T("settings.menu"),
		Keyboard: b.menu(ctx, c, StateSettings),
	}), nil
}

func (b *builder) showLanguageMenu(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateLanguage, fsm.Response{
		Text:     c.Loc.T("settings.pick_language"),
		Keyboard: b.languageMenu(ctx, c),
	}), nil
}

// setLanguage persists the choice and confirms in the newly chosen language.
func (b *builder) setLanguage(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	chosen := b.catalog.For(ev.Text)
	prefs := *c.Prefs
	prefs.Language = ev.Text

	settingsMenu := [][]string{
		{chosen.T("settings.language"), chosen.T("settings.units")},
		{chosen.T("menu.back")},
	}
	return fsm.Outcome{
		Next: fsm.State{Code: StateSettings},
		Responses: []fsm.Response{{
			Text:     chosen.T("settings.language_set"),
			Keyboard: settingsMenu,
		}},
		Effects: []fsm.Effect{fsm.SavePreferences{Prefs: &prefs}},
	}, nil
}

func (b *builder) showUnitsMenu(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateUnits, fsm.Response{
		Text:     c.Loc.T("settings.pick_units"),
		Keyboard: b.menu(ctx, c, StateUnits),
	}), nil
}

func (b *builder) setUnits(units string) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		prefs := *c.Prefs
		prefs.Units = units
		return fsm.Outcome{
			Next: fsm.State{Code: StateSettings},
			Responses: []fsm.Response{{
				Text:     c.Loc.T("settings.units_set"),
				Keyboard: b.menu(ctx, c, StateSettings),
			}},
			Effects: []fsm.Effect{fsm.SavePreferences{Prefs: &prefs}},
		}, nil
	}
}

// AlertMessage formats one scheduled push for the periodic job.
func AlertMessage(loc *i18n.Localizer, cond *Conditions) string {
	return loc.Tf("weather.alert_push", cond.SubjectName, cond.Summary)
}
