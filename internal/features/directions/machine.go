// ABOUTME: Directions conversation machine: origin, destination, route answer
// ABOUTME: The origin is carried in aux data while the destination is pending

package directions

import (
	"context"
	"strings"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// Name is the conversation type this machine registers under.
const Name = "directions"

// Directions conversation states.
const (
	StateMain = iota
	StateAwaitOrigin
	StateAwaitDestination
)

// Provider computes a route between two free-text addresses. Errors are
// transient; the conversation stays where it is.
type Provider interface {
	Route(ctx context.Context, origin, destination string) (string, error)
}

// New builds the directions machine over a routing provider.
func New(provider Provider) *fsm.Machine {
	b := &builder{provider: provider}

	return &fsm.Machine{
		Name:    Name,
		Initial: StateMain,
		Menu:    b.menu,
		Rules: map[int][]fsm.Rule{
			StateMain: {
				{When: fsm.Label("directions.menu.route"), Do: b.askOrigin},
				{When: b.recentRoute, Do: b.answerRecent},
			},
			StateAwaitOrigin: {
				{When: fsm.Reply(), Do: b.askDestination},
			},
			StateAwaitDestination: {
				{When: fsm.Reply(), Do: b.answerRoute},
			},
		},
	}
}

type builder struct {
	provider Provider
}

// menu offers the last routes one per row for a one-tap repeat, then the
// new-route option.
func (b *builder) menu(ctx context.Context, c *fsm.Context, code int) [][]string {
	if code != StateMain {
		return nil
	}
	var rows [][]string
	if recent, err := c.Store.ListRecent(ctx, c.Key.UserID); err == nil {
		for _, r := range recent {
			rows = append(rows, []string{r.SubjectName})
		}
	}
	return append(rows, []string{c.Loc.T("directions.menu.route")})
}

// recentRoute matches text equal to one of the user's recent route names.
func (b *builder) recentRoute(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) bool {
	return ev.Kind == remote.KindText && b.findRecent(ctx, c, ev.Text) != nil
}

func (b *builder) findRecent(ctx context.Context, c *fsm.Context, name string) *store.RecentQuery {
	recent, err := c.Store.ListRecent(ctx, c.Key.UserID)
	if err != nil {
		return nil
	}
	for _, r := range recent {
		if r.SubjectName == name {
			return r
		}
	}
	return nil
}

func (b *builder) askOrigin(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Outcome{
		Next:      fsm.State{Code: StateAwaitOrigin},
		Responses: []fsm.Response{{Text: c.Loc.T("directions.ask_origin"), AwaitReply: true}},
	}, nil
}

// askDestination stores the replied origin in aux and prompts for the
// destination; the next reply correlates against the new prompt.
func (b *builder) askDestination(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Outcome{
		Next: fsm.State{
			Code: StateAwaitDestination,
			Aux:  store.AuxData{Text: ev.Text},
		},
		Responses: []fsm.Response{{Text: c.Loc.T("directions.ask_destination"), AwaitReply: true}},
	}, nil
}

// answerRecent re-runs a stored route picked from the main menu. The exact
// endpoints come from the stored subject id, not the display name.
func (b *builder) answerRecent(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	r := b.findRecent(ctx, c, ev.Text)
	if r == nil {
		// History changed between match and handle; reprompt
		return fsm.Stay(st, fsm.Response{
			Text:     c.Loc.T("menu.main"),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}

	origin, destination, ok := strings.Cut(r.SubjectID, "|")
	if !ok {
		return fsm.Stay(st, fsm.Response{
			Text:     c.Loc.T("menu.main"),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}
	return b.route(ctx, c, st, origin, destination)
}

func (b *builder) answerRoute(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return b.route(ctx, c, st, st.Aux.Text, ev.Text)
}

func (b *builder) route(ctx context.Context, c *fsm.Context, st fsm.State, origin, destination string) (fsm.Outcome, error) {
	route, err := b.provider.Route(ctx, origin, destination)
	if err != nil {
		return fsm.Stay(st, fsm.Response{Text: c.Loc.T("fetch_failed")}), nil
	}

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf("directions.route", origin, destination, route),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.RecordRecent{
			UserID:      c.Key.UserID,
			SubjectID:   origin + "|" + destination,
			SubjectName: origin + " - " + destination,
		}},
	}, nil
}
