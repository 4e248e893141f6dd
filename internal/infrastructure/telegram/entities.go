package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// toTGEntities converts formatting spans to MTProto entities, unknown types are dropped
func toTGEntities(entities []domain.Entity) []tg.MessageEntityClass {
	if len(entities) == 0 {
		return nil
	}

	result := make([]tg.MessageEntityClass, 0, len(entities))
	for _, e := range entities {
		switch e.Type {
		case domain.EntityBold:
			result = append(result, &tg.MessageEntityBold{Offset: e.Offset, Length: e.Length})
		case domain.EntityItalic:
			result = append(result, &tg.MessageEntityItalic{Offset: e.Offset, Length: e.Length})
		case domain.EntityUnderline:
			result = append(result, &tg.MessageEntityUnderline{Offset: e.Offset, Length: e.Length})
		case domain.EntityStrike:
			result = append(result, &tg.MessageEntityStrike{Offset: e.Offset, Length: e.Length})
		case domain.EntitySpoiler:
			result = append(result, &tg.MessageEntitySpoiler{Offset: e.Offset, Length: e.Length})
		case domain.EntityCode:
			result = append(result, &tg.MessageEntityCode{Offset: e.Offset, Length: e.Length})
		case domain.EntityPre:
			result = append(result, &tg.MessageEntityPre{Offset: e.Offset, Length: e.Length, Language: e.Language})
		case domain.EntityTextURL:
			result = append(result, &tg.MessageEntityTextURL{Offset: e.Offset, Length: e.Length, URL: e.URL})
		case domain.EntityCustomEmoji:
			result = append(result, &tg.MessageEntityCustomEmoji{Offset: e.Offset, Length: e.Length, DocumentID: e.EmojiID})
		case domain.EntityBlockquote:
			result = append(result, &tg.MessageEntityBlockquote{Offset: e.Offset, Length: e.Length})
		}
	}
	return result
}

// fromTGEntities converts MTProto entities to formatting spans.
// Entities Telegram derives from text on its own (mentions, hashtags, urls) are skipped.
func fromTGEntities(entities []tg.MessageEntityClass) []domain.Entity {
	if len(entities) == 0 {
		return nil
	}

	result := make([]domain.Entity, 0, len(entities))
	for _, raw := range entities {
		e := domain.Entity{Offset: raw.GetOffset(), Length: raw.GetLength()}
		switch v := raw.(type) {
		case *tg.MessageEntityBold:
			e.Type = domain.EntityBold
		case *tg.MessageEntityItalic:
			e.Type = domain.EntityItalic
		case *tg.MessageEntityUnderline:
			e.Type = domain.EntityUnderline
		case *tg.MessageEntityStrike:
			e.Type = domain.EntityStrike
		case *tg.MessageEntitySpoiler:
			e.Type = domain.EntitySpoiler
		case *tg.MessageEntityCode:
			e.Type = domain.EntityCode
		case *tg.MessageEntityPre:
			e.Type = domain.EntityPre
			e.Language = v.Language
		case *tg.MessageEntityTextURL:
			e.Type = domain.EntityTextURL
			e.URL = v.URL
		case *tg.MessageEntityCustomEmoji:
			e.Type = domain.EntityCustomEmoji
			e.EmojiID = v.DocumentID
		case *tg.MessageEntityBlockquote:
			e.Type = domain.EntityBlockquote
		default:
			continue
		}
		result = append(result, e)
	}
	return result
}

// toInputPeer converts a destination to an MTProto input peer
func toInputPeer(peer domain.Peer) tg.InputPeerClass {
	if peer.Kind == domain.PeerChannel {
		return &tg.InputPeerChannel{ChannelID: peer.ID, AccessHash: peer.AccessHash}
	}
	return &tg.InputPeerChat{ChatID: peer.ID}
}

// groupsFromChats keeps basic groups and megagroups the account still belongs to
func groupsFromChats(chats []tg.ChatClass) []domain.Group {
	groups := make([]domain.Group, 0, len(chats))
	for _, chat := range chats {
		switch c := chat.(type) {
		case *tg.Chat:
			if c.Left || c.Deactivated {
				continue
			}
			groups = append(groups, domain.Group{
				Peer:  domain.Peer{Kind: domain.PeerChat, ID: c.ID},
				Title: c.Title,
			})
		case *tg.Channel:
			if !c.Megagroup || c.Left {
				continue
			}
			groups = append(groups, domain.Group{
				Peer:  domain.Peer{Kind: domain.PeerChannel, ID: c.ID, AccessHash: c.AccessHash},
				Title: c.Title,
			})
		}
	}
	return groups
}

// firstMessage extracts the first regular message of a history response
func firstMessage(res tg.MessagesMessagesClass) *domain.Message {
	var messages []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		messages = r.Messages
	case *tg.MessagesMessagesSlice:
		messages = r.Messages
	case *tg.MessagesChannelMessages:
		messages = r.Messages
	}

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		entities, _ := msg.GetEntities()
		return &domain.Message{Text: msg.Message, Entities: fromTGEntities(entities)}
	}
	return nil
}

// profileFromUser builds a profile from a user object
func profileFromUser(user *tg.User) *domain.Profile {
	if user == nil {
		return nil
	}
	return &domain.Profile{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Phone:     user.Phone,
	}
}
