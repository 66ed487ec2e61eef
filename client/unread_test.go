package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnreadCountsOwnMessagesIgnored(t *testing.T) {
	u := NewUnread(1, nil)

	u.OnMessageArrived(7, 1)

	require.Empty(t, u.Counts())
}

func TestUnreadIncrementsForOtherSenders(t *testing.T) {
	u := NewUnread(1, nil)

	u.OnMessageArrived(7, 2)
	u.OnMessageArrived(7, 2)
	u.OnMessageArrived(8, 3)

	require.Equal(t, map[int]int{7: 2, 8: 1}, u.Counts())
}

func TestUnreadActiveChatSuppressed(t *testing.T) {
	u := NewUnread(1, nil)

	u.OnChatOpened(7)
	u.OnMessageArrived(7, 2)

	require.Empty(t, u.Counts(), "open chat must not accumulate unread")

	u.OnChatClosed()
	u.OnMessageArrived(7, 2)
	require.Equal(t, map[int]int{7: 1}, u.Counts())
}

func TestUnreadOpenClearsAndMarksUpstream(t *testing.T) {
	var marked []int
	u := NewUnread(1, func(chatID int) { marked = append(marked, chatID) })

	u.OnMessageArrived(7, 2)
	u.OnMessageArrived(7, 2)
	u.OnChatOpened(7)

	require.Empty(t, u.Counts())
	require.Equal(t, []int{7}, marked)
}

func TestUnreadZeroEntriesAbsent(t *testing.T) {
	u := NewUnread(1, nil)

	u.Set(7, 3)
	u.Set(7, 0)
	u.Set(8, -1)

	counts := u.Counts()
	require.NotContains(t, counts, 7)
	require.NotContains(t, counts, 8)
	require.Equal(t, 0, u.Count(7))
}

func TestUnreadSetOverwrites(t *testing.T) {
	u := NewUnread(1, nil)

	u.OnMessageArrived(7, 2)
	u.Set(7, 5)

	require.Equal(t, 5, u.Count(7))
}
