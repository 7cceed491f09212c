package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKeepsSequenceContiguous(t *testing.T) {
	s := NewMessageStore()
	for i := range 50 {
		m := s.Append(fmt.Sprintf("u%d", i%3), "text")
		require.Equal(t, i, m.Seq)
	}

	all := s.All()
	require.Len(t, all, 50)
	for i, m := range all {
		assert.Equal(t, i, m.Seq)
	}
	assert.Equal(t, 50, s.Count())
}

func TestMergeHistoryNumbersFromZero(t *testing.T) {
	s := NewMessageStore()
	require.NoError(t, s.MergeHistory([]Draft{{Sender: "A", Text: "hi"}, {Sender: "B", Text: "hey"}}))

	m := s.Append("A", "after")
	assert.Equal(t, 2, m.Seq)

	all := s.All()
	assert.Equal(t, []string{"A", "B", "A"}, senders(all))
	assert.Equal(t, "hi", all[0].Text)
	assert.Equal(t, DeliveryNone, all[0].Delivery)
}

func TestMergeHistoryOnNonEmptyStoreFails(t *testing.T) {
	s := NewMessageStore()
	s.Append("A", "x")
	before := s.All()

	err := s.MergeHistory([]Draft{{Sender: "B", Text: "y"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, ErrCodeInvalidState, CodeOf(err))
	assert.Equal(t, before, s.All())
}

func TestMergeHistoryAfterReset(t *testing.T) {
	s := NewMessageStore()
	require.NoError(t, s.MergeHistory([]Draft{{Sender: "A", Text: "x"}}))
	s.Reset()
	require.Zero(t, s.Count())
	require.NoError(t, s.MergeHistory([]Draft{{Sender: "B", Text: "y"}}))
	assert.Equal(t, []string{"B"}, senders(s.All()))
}

func TestAllReturnsSnapshot(t *testing.T) {
	s := NewMessageStore()
	s.Append("A", "x")
	snap := s.All()
	snap[0].Text = "mutated"
	s.Append("B", "y")

	assert.Len(t, snap, 1)
	m, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, "x", m.Text)
}

func TestConcurrentAppendsStayContiguous(t *testing.T) {
	s := NewMessageStore()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Append(fmt.Sprintf("w%d", w), "m")
				_ = s.Count()
			}
		}()
	}
	wg.Wait()

	all := s.All()
	require.Len(t, all, 800)
	for i, m := range all {
		require.Equal(t, i, m.Seq)
	}
}

func TestSetDelivery(t *testing.T) {
	s := NewMessageStore()
	s.Append("B", "remote")
	local := s.AppendLocal("A", "mine", "cid")
	require.Equal(t, DeliveryPending, local.Delivery)
	require.True(t, local.Local)

	_, ok := s.SetDelivery(0, DeliverySent, "")
	assert.False(t, ok, "remote messages carry no delivery state")
	_, ok = s.SetDelivery(7, DeliverySent, "")
	assert.False(t, ok)

	m, ok := s.SetDelivery(local.Seq, DeliveryFailed, "offline")
	require.True(t, ok)
	assert.True(t, m.Failed())
	assert.Equal(t, "offline", m.DeliveryErr)

	m, _ = s.SetDelivery(local.Seq, DeliveryDelivered, "")
	assert.Equal(t, DeliveryDelivered, m.Delivery)
	m, _ = s.SetDelivery(local.Seq, DeliverySent, "")
	assert.Equal(t, DeliveryDelivered, m.Delivery, "delivered is final")
	assert.Equal(t, 2, s.Count())
}

func TestFindUnconfirmed(t *testing.T) {
	s := NewMessageStore()
	first := s.AppendLocal("A", "same", "c1")
	second := s.AppendLocal("A", "same", "c2")
	s.Append("A", "same")

	m, ok := s.FindUnconfirmed("c2", "A", "same")
	require.True(t, ok)
	assert.Equal(t, second.Seq, m.Seq)

	m, ok = s.FindUnconfirmed("", "A", "same")
	require.True(t, ok)
	assert.Equal(t, first.Seq, m.Seq, "oldest unconfirmed wins")

	s.SetDelivery(first.Seq, DeliveryDelivered, "")
	m, ok = s.FindUnconfirmed("", "A", "same")
	require.True(t, ok)
	assert.Equal(t, second.Seq, m.Seq)

	_, ok = s.FindUnconfirmed("unknown", "A", "same")
	assert.False(t, ok)
}
