package domain

import "strings"

// PeerKind distinguishes basic groups from supergroups
type PeerKind string

const (
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// Peer addresses a destination group on the remote side
type Peer struct {
	Kind       PeerKind `json:"kind"`
	ID         int64    `json:"id"`
	AccessHash int64    `json:"access_hash,omitempty"`
}

// Group is a group the account is a member of
type Group struct {
	Peer
	Title string `json:"title"`
}

// Entity is a formatting span over message text
type Entity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	EmojiID  int64  `json:"emoji_id,omitempty"`
}

// Entity types understood by the protocol adapter
const (
	EntityBold        = "bold"
	EntityItalic      = "italic"
	EntityUnderline   = "underline"
	EntityStrike      = "strike"
	EntitySpoiler     = "spoiler"
	EntityCode        = "code"
	EntityPre         = "pre"
	EntityTextURL     = "text_url"
	EntityCustomEmoji = "custom_emoji"
	EntityBlockquote  = "blockquote"
)

// Message is resolved text plus formatting
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Empty reports whether the message has nothing to send
func (m *Message) Empty() bool {
	return m == nil || strings.TrimSpace(m.Text) == ""
}

// Profile is the public profile of a logged in account
type Profile struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
	About     string `json:"about,omitempty"`
}

// DisplayName returns first and last name joined
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
