package telegram

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

const (
	dialogsPageSize = 100
	// Upper bound on pages fetched per sync
	dialogsMaxPages = 50
)

// dialogsPage is one messages.getDialogs response
type dialogsPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	// last is set when the server returned every dialog
	last bool
}

func pageFromDialogs(res tg.MessagesDialogsClass) dialogsPage {
	switch r := res.(type) {
	case *tg.MessagesDialogs:
		return dialogsPage{dialogs: r.Dialogs, messages: r.Messages, chats: r.Chats, users: r.Users, last: true}
	case *tg.MessagesDialogsSlice:
		return dialogsPage{dialogs: r.Dialogs, messages: r.Messages, chats: r.Chats, users: r.Users}
	default:
		return dialogsPage{last: true}
	}
}

// listGroups pages through the dialog list and keeps the groups the account takes part in
func listGroups(ctx context.Context, api *tg.Client) ([]domain.Group, error) {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogsPageSize,
	}

	seen := make(map[domain.Peer]struct{})
	var groups []domain.Group

	for i := 0; i < dialogsMaxPages; i++ {
		res, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return nil, classify(err)
		}

		page := pageFromDialogs(res)
		for _, g := range groupsFromDialogs(page.dialogs, page.chats) {
			if _, ok := seen[g.Peer]; ok {
				continue
			}
			seen[g.Peer] = struct{}{}
			groups = append(groups, g)
		}

		if page.last || len(page.dialogs) < dialogsPageSize {
			break
		}
		next, ok := nextDialogsOffset(page)
		if !ok {
			break
		}
		next.Limit = dialogsPageSize
		req = next
	}

	return groups, nil
}

// groupsFromDialogs keeps only chats that are dialogs of the account,
// responses also carry chats referenced by forwarded messages
func groupsFromDialogs(dialogs []tg.DialogClass, chats []tg.ChatClass) []domain.Group {
	inDialogs := make(map[domain.Peer]struct{}, len(dialogs))
	for _, d := range dialogs {
		dialog, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		switch p := dialog.Peer.(type) {
		case *tg.PeerChat:
			inDialogs[domain.Peer{Kind: domain.PeerChat, ID: p.ChatID}] = struct{}{}
		case *tg.PeerChannel:
			inDialogs[domain.Peer{Kind: domain.PeerChannel, ID: p.ChannelID}] = struct{}{}
		}
	}

	var groups []domain.Group
	for _, g := range groupsFromChats(chats) {
		if _, ok := inDialogs[domain.Peer{Kind: g.Kind, ID: g.ID}]; ok {
			groups = append(groups, g)
		}
	}
	return groups
}

// nextDialogsOffset builds the request for the page after the last dialog of page
func nextDialogsOffset(page dialogsPage) (*tg.MessagesGetDialogsRequest, bool) {
	if len(page.dialogs) == 0 {
		return nil, false
	}
	last := page.dialogs[len(page.dialogs)-1]
	dialog, ok := last.(*tg.Dialog)
	if !ok {
		return nil, false
	}

	offsetPeer, ok := inputPeerOf(dialog.Peer, page.chats, page.users)
	if !ok {
		return nil, false
	}

	req := &tg.MessagesGetDialogsRequest{
		OffsetID:   dialog.TopMessage,
		OffsetPeer: offsetPeer,
	}
	for _, m := range page.messages {
		if m.GetID() != dialog.TopMessage {
			continue
		}
		switch msg := m.(type) {
		case *tg.Message:
			if samePeer(msg.PeerID, dialog.Peer) {
				req.OffsetDate = msg.Date
			}
		case *tg.MessageService:
			if samePeer(msg.PeerID, dialog.Peer) {
				req.OffsetDate = msg.Date
			}
		}
	}
	return req, true
}

func inputPeerOf(peer tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) (tg.InputPeerClass, bool) {
	switch p := peer.(type) {
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		for _, c := range chats {
			if ch, ok := c.(*tg.Channel); ok && ch.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
			}
		}
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, true
			}
		}
	}
	return nil, false
}

func samePeer(a, b tg.PeerClass) bool {
	switch x := a.(type) {
	case *tg.PeerChat:
		y, ok := b.(*tg.PeerChat)
		return ok && x.ChatID == y.ChatID
	case *tg.PeerChannel:
		y, ok := b.(*tg.PeerChannel)
		return ok && x.ChannelID == y.ChannelID
	case *tg.PeerUser:
		y, ok := b.(*tg.PeerUser)
		return ok && x.UserID == y.UserID
	}
	return false
}
