package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionConfig carries the collaborators of a room session.
type SessionConfig struct {
	// Self is the id of the current user; messages sent through the session carry it.
	Self       string
	Repository RoomRepository
	Live       LiveSource
	Transport  Transport
	Sink       Sink
	Logger     *zerolog.Logger
	// NewClientID generates ids for optimistic messages. Defaults to uuid.NewString.
	NewClientID func() string
}

// Session reconciles one room's history, live stream and local sends into a single
// ordered view. Enter, Leave, Send and live deliveries are serialized by one lock;
// the history fetch and the transport dispatch run outside of it.
type Session struct {
	self      string
	repo      RoomRepository
	live      LiveSource
	transport Transport
	sink      Sink
	log       *zerolog.Logger
	newID     func() string

	mu          sync.Mutex
	gen         uint64
	state       State
	room        string
	info        RoomInfo
	store       *MessageStore
	groups      *GroupCache
	err         error
	cancelFetch context.CancelFunc
	sub         Subscription
	stopPump    chan struct{}
	pumpDone    chan struct{}
}

// NewSession constructs an idle session.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	newID := cfg.NewClientID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Session{
		self:      cfg.Self,
		repo:      cfg.Repository,
		live:      cfg.Live,
		transport: cfg.Transport,
		sink:      cfg.Sink,
		log:       logger,
		newID:     newID,
		state:     StateIdle,
		groups:    NewGroupCache(),
	}
}

// Enter opens roomID: it tears down whatever the session was doing, fetches history,
// merges it and subscribes to the live stream. A failed fetch or subscribe leaves the
// session in StateFailed and returns an ErrNetwork error; there is no automatic retry.
func (s *Session) Enter(ctx context.Context, roomID string) error {
	if roomID == "" {
		return invalidState("room id is required")
	}

	s.mu.Lock()
	oldPump, closeErr := s.teardownLocked()
	if closeErr != nil {
		s.log.Warn().Err(closeErr).Str("room", s.room).Msg("unsubscribe previous room failed")
	}
	gen := s.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelFetch = cancel
	s.room = roomID
	s.info = RoomInfo{ID: roomID}
	s.store = NewMessageStore()
	s.err = nil
	s.setStateLocked(StateLoading)
	s.mu.Unlock()

	waitPump(oldPump)

	history, fetchErr := s.repo.FetchHistory(fetchCtx, roomID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug().Str("room", roomID).Msg("discarding history for abandoned session")
		return fmt.Errorf("enter room %s: %w", roomID, context.Canceled)
	}
	if fetchErr != nil {
		err := s.failLocked(networkError("fetch history", fetchErr))
		s.mu.Unlock()
		return err
	}
	if history != nil {
		if err := s.store.MergeHistory(history.Messages); err != nil {
			err = s.failLocked(err)
			s.mu.Unlock()
			return err
		}
		s.info = history.Room
		if s.info.ID == "" {
			s.info.ID = roomID
		}
	}
	s.mu.Unlock()

	sub, subErr := s.live.Subscribe(fetchCtx, roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		if sub != nil {
			_ = sub.Close()
		}
		return fmt.Errorf("enter room %s: %w", roomID, context.Canceled)
	}
	if subErr != nil {
		return s.failLocked(networkError("subscribe", subErr))
	}

	s.cancelFetch = nil
	s.sub = sub
	s.stopPump = make(chan struct{})
	s.pumpDone = make(chan struct{})
	go s.pump(gen, sub, s.stopPump, s.pumpDone)

	s.setStateLocked(StateActive)
	s.log.Info().Str("room", roomID).Int("history", s.store.Count()).Msg("entered room")
	return nil
}

// Leave unsubscribes, cancels an in-flight fetch and discards the message log.
// When Leave returns no further live message reaches the session.
func (s *Session) Leave() error {
	s.mu.Lock()
	done, err := s.teardownLocked()
	room := s.room
	s.room = ""
	s.info = RoomInfo{}
	s.store = nil
	s.err = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	waitPump(done)
	if err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("unsubscribe failed")
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// Send appends text optimistically as a local message and dispatches it.
// A transport failure keeps the message, flags it DeliveryFailed and returns an
// ErrDeliveryFailed error.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, invalidState("message text is empty")
	}

	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return Message{}, invalidState("send in state %s", state)
	}
	gen := s.gen
	room := s.room
	store := s.store
	msg := store.AppendLocal(s.self, text, s.newID())
	s.publishLocked()
	s.mu.Unlock()

	sendErr := s.transport.Send(ctx, Outgoing{
		Room:     room,
		Sender:   msg.Sender,
		Text:     msg.Text,
		ClientID: msg.ClientID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	state := DeliverySent
	reason := ""
	if sendErr != nil {
		state = DeliveryFailed
		reason = sendErr.Error()
	}
	updated, _ := store.SetDelivery(msg.Seq, state, reason)
	if gen == s.gen {
		s.publishLocked()
	}

	if sendErr != nil && updated.Delivery != DeliveryDelivered {
		s.log.Warn().Err(sendErr).Str("room", room).Int("seq", msg.Seq).Msg("message delivery failed")
		return updated, coreError(ErrCodeDeliveryFailed, "send message", sendErr)
	}
	return updated, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateFailed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Room returns the id of the current room, or "" when idle.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Info returns the participants of the current room.
func (s *Session) Info() RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Count returns the size of the current message log.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return 0
	}
	return s.store.Count()
}

// View returns the current ordered, grouped view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) pump(gen uint64, sub Subscription, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	messages := sub.Messages()
	for {
		select {
		case <-stop:
			return
		case in, ok := <-messages:
			if !ok {
				s.subscriptionEnded(gen, sub.Err())
				return
			}
			s.deliver(gen, in)
		}
	}
}

func (s *Session) deliver(gen uint64, in Incoming) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != StateActive {
		return
	}
	if in.Room != "" && in.Room != s.room {
		return
	}

	if in.Sender == s.self {
		if local, ok := s.store.FindUnconfirmed(in.ClientID, in.Sender, in.Text); ok {
			s.store.SetDelivery(local.Seq, DeliveryDelivered, "")
			s.publishLocked()
			return
		}
	}

	s.store.Append(in.Sender, in.Text)
	s.publishLocked()
}

func (s *Session) subscriptionEnded(gen uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
		s.stopPump = nil
	}
	if cause == nil {
		cause = ErrSubscriptionClosed
	}
	s.failLocked(coreError(ErrCodeSubscriptionClosed, "live subscription ended", cause))
}

// teardownLocked invalidates in-flight work and returns the pump to wait for.
// The caller waits on it after releasing the lock.
func (s *Session) teardownLocked() (chan struct{}, error) {
	s.gen++
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}

	var err error
	if s.sub != nil {
		close(s.stopPump)
		err = s.sub.Close()
		s.sub = nil
		s.stopPump = nil
	}
	done := s.pumpDone
	s.pumpDone = nil
	s.groups.Reset()
	return done, err
}

func (s *Session) failLocked(err error) error {
	s.err = err
	s.log.Warn().Err(err).Str("room", s.room).Msg("room session failed")
	s.setStateLocked(StateFailed)
	return err
}

func (s *Session) setStateLocked(state State) {
	if s.state != state {
		s.log.Debug().Str("room", s.room).Str("from", s.state.String()).Str("to", state.String()).Msg("session state")
	}
	s.state = state
	s.publishLocked()
}

func (s *Session) publishLocked() {
	if s.sink == nil {
		return
	}
	s.sink.Publish(s.viewLocked())
}

func (s *Session) viewLocked() View {
	view := View{
		Room:  s.room,
		Info:  s.info,
		State: s.state,
		Err:   s.err,
	}
	if s.store == nil {
		return view
	}

	messages := s.store.All()
	flags := s.groups.Classify(messages)
	view.Rows = make([]Row, len(messages))
	for i, m := range messages {
		view.Rows[i] = Row{
			Message: m,
			Grouped: flags[i],
			Mine:    m.Sender == s.self,
		}
	}
	return view
}

func waitPump(done chan struct{}) {
	if done != nil {
		<-done
	}
}
