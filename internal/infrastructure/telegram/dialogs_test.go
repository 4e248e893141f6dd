package telegram

import (
	"context"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// dialogsInvoker answers messages.getDialogs with prepared pages
type dialogsInvoker struct {
	pages    []tg.MessagesDialogsClass
	requests []*tg.MessagesGetDialogsRequest
}

func (f *dialogsInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	req, ok := input.(*tg.MessagesGetDialogsRequest)
	if !ok {
		return tgerr.New(400, "METHOD_INVALID")
	}
	f.requests = append(f.requests, req)

	page := f.pages[len(f.requests)-1]
	var b bin.Buffer
	if err := page.Encode(&b); err != nil {
		return err
	}
	return output.Decode(&b)
}

func chatDialog(id int64, top int) *tg.Dialog {
	return &tg.Dialog{Peer: &tg.PeerChat{ChatID: id}, TopMessage: top}
}

func basicChat(id int64, title string) *tg.Chat {
	return &tg.Chat{ID: id, Title: title, Photo: &tg.ChatPhotoEmpty{}}
}

func TestListGroups_PagesThroughDialogs(t *testing.T) {
	first := &tg.MessagesDialogsSlice{Count: dialogsPageSize + 3}
	for i := 1; i <= dialogsPageSize; i++ {
		first.Dialogs = append(first.Dialogs, chatDialog(int64(i), i*10))
		first.Chats = append(first.Chats, basicChat(int64(i), "group"))
	}
	first.Messages = append(first.Messages, &tg.Message{
		ID:      dialogsPageSize * 10,
		PeerID:  &tg.PeerChat{ChatID: dialogsPageSize},
		Date:    1700000000,
		Message: "last",
	})

	second := &tg.MessagesDialogs{
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 500}, TopMessage: 1},
			chatDialog(501, 2),
			// Repeated from the first page
			chatDialog(1, 10),
		},
		Chats: []tg.ChatClass{
			&tg.Channel{ID: 500, AccessHash: 77, Title: "mega", Megagroup: true, Photo: &tg.ChatPhotoEmpty{}},
			&tg.Chat{ID: 501, Title: "left", Left: true, Photo: &tg.ChatPhotoEmpty{}},
			basicChat(1, "group"),
			// Referenced by a forward, not a dialog of the account
			&tg.Channel{ID: 900, AccessHash: 5, Title: "elsewhere", Megagroup: true, Photo: &tg.ChatPhotoEmpty{}},
		},
	}

	invoker := &dialogsInvoker{pages: []tg.MessagesDialogsClass{first, second}}
	groups, err := listGroups(context.Background(), tg.NewClient(invoker))
	require.NoError(t, err)

	require.Len(t, invoker.requests, 2)
	assert.IsType(t, &tg.InputPeerEmpty{}, invoker.requests[0].OffsetPeer)
	assert.Equal(t, dialogsPageSize, invoker.requests[0].Limit)

	next := invoker.requests[1]
	assert.Equal(t, dialogsPageSize*10, next.OffsetID)
	assert.Equal(t, 1700000000, next.OffsetDate)
	offsetPeer, ok := next.OffsetPeer.(*tg.InputPeerChat)
	require.True(t, ok, "offset peer %T", next.OffsetPeer)
	assert.Equal(t, int64(dialogsPageSize), offsetPeer.ChatID)

	require.Len(t, groups, dialogsPageSize+1)
	mega := groups[len(groups)-1]
	assert.Equal(t, domain.Peer{Kind: domain.PeerChannel, ID: 500, AccessHash: 77}, mega.Peer)
	assert.Equal(t, "mega", mega.Title)
}

func TestListGroups_SinglePage(t *testing.T) {
	invoker := &dialogsInvoker{pages: []tg.MessagesDialogsClass{
		&tg.MessagesDialogs{
			Dialogs: []tg.DialogClass{chatDialog(1, 1)},
			Chats:   []tg.ChatClass{basicChat(1, "only")},
		},
	}}

	groups, err := listGroups(context.Background(), tg.NewClient(invoker))
	require.NoError(t, err)
	require.Len(t, invoker.requests, 1)
	require.Len(t, groups, 1)
	assert.Equal(t, domain.Peer{Kind: domain.PeerChat, ID: 1}, groups[0].Peer)
}

func TestListGroups_ClassifiesRPCErrors(t *testing.T) {
	invoker := &failingInvoker{err: tgerr.New(401, "AUTH_KEY_UNREGISTERED")}

	_, err := listGroups(context.Background(), tg.NewClient(invoker))
	require.Error(t, err)
	assert.Equal(t, domain.KindSessionRevoked, domain.KindOf(err))
}

type failingInvoker struct {
	err error
}

func (f *failingInvoker) Invoke(context.Context, bin.Encoder, bin.Decoder) error {
	return f.err
}

func TestNextDialogsOffset_ChannelNeedsAccessHash(t *testing.T) {
	page := dialogsPage{
		dialogs: []tg.DialogClass{&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 3}, TopMessage: 9}},
	}
	_, ok := nextDialogsOffset(page)
	assert.False(t, ok, "a channel missing from chats cannot be an offset peer")

	page.chats = []tg.ChatClass{&tg.Channel{ID: 3, AccessHash: 4}}
	req, ok := nextDialogsOffset(page)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 3, AccessHash: 4}, req.OffsetPeer)
	assert.Equal(t, 9, req.OffsetID)
}

func TestNewRandomID_Varies(t *testing.T) {
	a, err := newRandomID()
	require.NoError(t, err)
	b, err := newRandomID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
