// ABOUTME: Channel-relay conversation machine: subscribe chats to channels
// ABOUTME: Channel posts fan out to every subscribed chat

package relay

import (
	"context"
	"strings"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/remote"
)

// Name is the conversation type this machine registers under.
const Name = "relay"

// Relay conversation states.
const (
	StateMain = iota
	StateAwaitSubscribe
	StateAwaitUnsubscribe
)

// New builds the channel-relay machine.
func New() *fsm.Machine {
	b := &builder{}

	return &fsm.Machine{
		Name:    Name,
		Initial: StateMain,
		Menu:    b.menu,
		Rules: map[int][]fsm.Rule{
			StateMain: {
				{When: fsm.ChannelPost(), Do: b.relayPost},
				{When: fsm.Label("relay.menu.subscribe"), Do: b.askChannel(StateAwaitSubscribe)},
				{When: fsm.Label("relay.menu.unsubscribe"), Do: b.askChannel(StateAwaitUnsubscribe)},
				{When: fsm.Label("relay.menu.list"), Do: b.listSubscriptions},
			},
			StateAwaitSubscribe: {
				{When: fsm.Reply(), Do: b.subscribe},
			},
			StateAwaitUnsubscribe: {
				{When: fsm.Reply(), Do: b.unsubscribe},
			},
		},
	}
}

type builder struct{}

func (b *builder) menu(ctx context.Context, c *fsm.Context, code int) [][]string {
	if code == StateMain {
		return [][]string{
			{c.Loc.T("relay.menu.subscribe"), c.Loc.T("relay.menu.unsubscribe")},
			{c.Loc.T("relay.menu.list")},
		}
	}
	return nil
}

func (b *builder) askChannel(next int) fsm.Handler {
	return func(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
		return fsm.Outcome{
			Next:      fsm.State{Code: next},
			Responses: []fsm.Response{{Text: c.Loc.T("relay.ask_channel"), AwaitReply: true}},
		}, nil
	}
}

func normalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

func (b *builder) subscribe(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	channel := normalizeChannel(ev.Text)

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf("relay.subscribed", channel),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.AddSubscription{Channel: channel, ChatID: c.Key.ChatID}},
	}, nil
}

func (b *builder) unsubscribe(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	channel := normalizeChannel(ev.Text)

	channels, err := c.Store.ListSubscriptionsForChat(ctx, c.Key.ChatID)
	if err != nil {
		return fsm.Outcome{}, err
	}

	subscribed := false
	for _, ch := range channels {
		if ch == channel {
			subscribed = true
			break
		}
	}
	if !subscribed {
		return fsm.Goto(StateMain, fsm.Response{
			Text:     c.Loc.Tf("relay.not_subscribed", channel),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf("relay.unsubscribed", channel),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.RemoveSubscription{Channel: channel, ChatID: c.Key.ChatID}},
	}, nil
}

func (b *builder) listSubscriptions(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	channels, err := c.Store.ListSubscriptionsForChat(ctx, c.Key.ChatID)
	if err != nil {
		return fsm.Outcome{}, err
	}

	if len(channels) == 0 {
		return fsm.Stay(st, fsm.Response{
			Text:     c.Loc.T("relay.none"),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}

	return fsm.Stay(st, fsm.Response{
		Text:     strings.Join(channels, "\n"),
		Keyboard: b.menu(ctx, c, StateMain),
	}), nil
}

// relayPost forwards a channel post to every subscribed chat. The state is
// untouched; a relay is a broadcast, not a dialog step.
func (b *builder) relayPost(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	channel := normalizeChannel(ev.Channel)

	subscribers, err := c.Store.ListSubscribers(ctx, channel)
	if err != nil {
		return fsm.Outcome{}, err
	}

	responses := make([]fsm.Response, 0, len(subscribers))
	for _, chatID := range subscribers {
		responses = append(responses, fsm.Response{
			ChatID: chatID,
			Text:   "@" + channel + ": " + ev.Text,
		})
	}

	return fsm.Outcome{Next: st, Responses: responses}, nil
}
