package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vovakirdan/projectchat-server/internal/observability"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

const (
	defaultPersistTimeout = 5 * time.Second
	publishTimeout        = 2 * time.Second

	// RoutingKeyMessageCreated is used when publishing stored messages.
	RoutingKeyMessageCreated = "chat.message.created"
)

// ErrHubStopped is returned by queries issued after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Store is the persistence the hub depends on.
type Store interface {
	AppendMessage(ctx context.Context, content, projectID, userID string) (*store.Message, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
}

// Publisher receives stored messages for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// MessageCreated is the payload published for every stored message.
type MessageCreated struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithPublisher publishes every stored message to p.
func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.publisher = p }
}

// WithPersistTimeout bounds each store call.
func WithPersistTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.persistTimeout = d
		}
	}
}

// WithMaxContentBytes rejects messages longer than n bytes after trimming.
func WithMaxContentBytes(n int) Option {
	return func(h *Hub) { h.maxContentBytes = n }
}

// WithSendLimit allows at most n messages per connection per window. n <= 0 disables it.
func WithSendLimit(n int, window time.Duration) Option {
	return func(h *Hub) {
		h.sendLimit = n
		if window > 0 {
			h.sendWindow = window
		}
	}
}

// Hub tracks which connections belong to which project room, relays chat
// messages within a room and pushes presence snapshots on membership changes.
//
// All membership state is owned by the Run goroutine. Each registered client
// gets a command pump that handles its commands in order; store calls happen
// in the pump so a slow write never stalls other connections.
type Hub struct {
	store     Store
	publisher Publisher
	log       *zerolog.Logger
	tracer    trace.Tracer

	persistTimeout  time.Duration
	maxContentBytes int
	sendLimit       int
	sendWindow      time.Duration

	register    chan *Client
	unregister  chan *Client
	roomChanges chan roomChange
	deliveries  chan delivery
	replies     chan reply
	queries     chan presenceQuery
	stopped     chan struct{}

	// Owned by the Run goroutine.
	clients     map[string]*Client
	memberships map[string]membership
	rooms       map[string]*Room
}

type membership struct {
	UserID    string
	ProjectID string
}

// roomChange moves a client to projectID, or out of its room when projectID is empty.
type roomChange struct {
	client    *Client
	projectID string
}

type delivery struct {
	sender    *Client
	message   *store.Message
	requestID string
}

type reply struct {
	client *Client
	event  *Event
}

type presenceQuery struct {
	projectID string
	resp      chan []string
}

// NewHub creates a new hub backed by st.
func NewHub(st Store, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		store:          st,
		log:            &nop,
		tracer:         otel.Tracer("projectchat/core"),
		persistTimeout: defaultPersistTimeout,
		sendWindow:     time.Minute,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		roomChanges:    make(chan roomChange),
		deliveries:     make(chan delivery),
		replies:        make(chan reply),
		queries:        make(chan presenceQuery),
		stopped:        make(chan struct{}),
		clients:        make(map[string]*Client),
		memberships:    make(map[string]membership),
		rooms:          make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes hub events until ctx is cancelled. On return every client
// stream is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case change := <-h.roomChanges:
			h.handleRoomChange(change)
		case d := <-h.deliveries:
			h.handleDelivery(d)
		case r := <-h.replies:
			h.handleReply(r)
		case q := <-h.queries:
			q.resp <- h.presence(q.projectID)
		}
	}
}

// RegisterClient adds a connection to the hub and starts its command pump.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
		c.close()
	}
}

// UnregisterClient removes a connection, updating presence for its room.
// Unregistering an unknown or already removed client is a no-op.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Presence returns the sorted, distinct user IDs connected to a project room.
func (h *Hub) Presence(ctx context.Context, projectID string) ([]string, error) {
	q := presenceQuery{projectID: projectID, resp: make(chan []string, 1)}
	select {
	case h.queries <- q:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.stopped:
		return nil, ErrHubStopped
	}
	return <-q.resp, nil
}

func submit[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.stopped:
		return false
	}
}

// ==== Run goroutine ====

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	if _, exists := h.clients[c.ID]; exists {
		h.log.Warn().Str("client_id", c.ID).Msg("duplicate client id, ignoring register")
		return
	}
	h.clients[c.ID] = c
	observability.IncHubConnections()
	h.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client registered")

	go h.pump(ctx, c)
}

func (h *Hub) handleUnregister(c *Client) {
	if existing, ok := h.clients[c.ID]; !ok || existing != c {
		return
	}
	delete(h.clients, c.ID)
	h.leaveRoom(c)
	c.close()
	observability.DecHubConnections()
	h.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client unregistered")
}

func (h *Hub) handleRoomChange(change roomChange) {
	c := change.client
	if !h.registered(c) {
		return
	}

	if change.projectID == "" {
		h.leaveRoom(c)
		return
	}

	if current, ok := h.memberships[c.ID]; ok && current.ProjectID == change.projectID {
		// Already there: refresh the caller's snapshot only.
		h.deliver(c, h.presenceEvent(h.rooms[change.projectID]))
		return
	}

	h.leaveRoom(c)

	room, ok := h.rooms[change.projectID]
	if !ok {
		room = NewRoom(change.projectID)
		h.rooms[change.projectID] = room
		observability.SetActiveRooms(len(h.rooms))
	}
	room.AddClient(c)
	h.memberships[c.ID] = membership{UserID: c.UserID, ProjectID: change.projectID}
	h.log.Debug().Str("client_id", c.ID).Str("project_id", change.projectID).Msg("joined project room")

	h.broadcast(room, h.presenceEvent(room))
}

func (h *Hub) handleDelivery(d delivery) {
	if room, ok := h.rooms[d.message.ProjectID]; ok {
		h.broadcast(room, &Event{
			Kind:      EventReceiveMessage,
			ProjectID: d.message.ProjectID,
			Message:   d.message,
		})
	}
	if h.registered(d.sender) {
		h.deliver(d.sender, &Event{
			Kind:      EventMessageAck,
			ProjectID: d.message.ProjectID,
			Message:   d.message,
			RequestID: d.requestID,
		})
	}
}

func (h *Hub) handleReply(r reply) {
	if h.registered(r.client) {
		h.deliver(r.client, r.event)
	}
}

// leaveRoom drops the client's membership and notifies the remaining members.
func (h *Hub) leaveRoom(c *Client) {
	m, ok := h.memberships[c.ID]
	if !ok {
		return
	}
	delete(h.memberships, c.ID)

	room, ok := h.rooms[m.ProjectID]
	if !ok {
		return
	}
	room.RemoveClient(c)
	h.log.Debug().Str("client_id", c.ID).Str("project_id", m.ProjectID).Msg("left project room")

	if room.Empty() {
		delete(h.rooms, m.ProjectID)
		observability.SetActiveRooms(len(h.rooms))
		return
	}
	h.broadcast(room, h.presenceEvent(room))
}

func (h *Hub) registered(c *Client) bool {
	existing, ok := h.clients[c.ID]
	return ok && existing == c
}

func (h *Hub) presence(projectID string) []string {
	room, ok := h.rooms[projectID]
	if !ok {
		return []string{}
	}
	return room.Presence()
}

func (h *Hub) presenceEvent(room *Room) *Event {
	return &Event{Kind: EventPresence, ProjectID: room.ProjectID, Online: room.Presence()}
}

func (h *Hub) broadcast(room *Room, ev *Event) {
	observability.IncHubEvent(ev.Kind.String())
	for _, c := range room.Broadcast(ev) {
		h.dropped(c, ev)
	}
}

func (h *Hub) deliver(c *Client, ev *Event) {
	observability.IncHubEvent(ev.Kind.String())
	if !c.deliver(ev) {
		h.dropped(c, ev)
	}
}

func (h *Hub) dropped(c *Client, ev *Event) {
	observability.IncDroppedEvent(ev.Kind.String())
	h.log.Warn().
		Str("client_id", c.ID).
		Str("event", ev.Kind.String()).
		Msg("client buffer full, event dropped")
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.memberships = make(map[string]membership)
	h.rooms = make(map[string]*Room)
	observability.SetActiveRooms(0)
	h.log.Info().Msg("hub stopped")
}

// ==== Command pumps ====

// session is the pump-local view of a connection. It mirrors the room the hub
// has been asked to put the client in; the hub remains the source of truth.
type session struct {
	client    *Client
	projectID string
	limiter   *rateLimiter
}

func (h *Hub) pump(ctx context.Context, c *Client) {
	s := &session{client: c, limiter: newRateLimiter(h.sendLimit, h.sendWindow)}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd != nil {
				h.handleCommand(ctx, s, cmd)
			}
		}
	}
}

func (h *Hub) handleCommand(ctx context.Context, s *session, cmd *Command) {
	c := s.client
	if cmd.UserID != "" && cmd.UserID != c.UserID {
		h.log.Warn().
			Str("client_id", c.ID).
			Str("user_id", c.UserID).
			Str("claimed_user_id", cmd.UserID).
			Msg("rejecting command with mismatched identity")
		h.reject(c, cmd.RequestID, coreError(ErrCodeUnauthorized, "user does not match connection"))
		return
	}

	switch cmd.Kind {
	case CommandJoinProject:
		h.join(ctx, s, cmd)
	case CommandLeaveProject:
		if s.projectID == "" {
			return
		}
		if submit(h, h.roomChanges, roomChange{client: c}) {
			s.projectID = ""
		}
	case CommandSendMessage:
		h.sendMessage(ctx, s, cmd)
	default:
		h.reject(c, cmd.RequestID, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) join(ctx context.Context, s *session, cmd *Command) {
	c := s.client
	if cmd.ProjectID == "" {
		h.reject(c, cmd.RequestID, coreError(ErrCodeBadRequest, "projectId is required"))
		return
	}
	if cerr := h.authorize(ctx, "join", cmd.ProjectID, c.UserID); cerr != nil {
		h.reject(c, cmd.RequestID, cerr)
		return
	}
	if submit(h, h.roomChanges, roomChange{client: c, projectID: cmd.ProjectID}) {
		s.projectID = cmd.ProjectID
	}
}

func (h *Hub) sendMessage(ctx context.Context, s *session, cmd *Command) {
	c := s.client
	if s.projectID == "" {
		h.reject(c, cmd.RequestID, coreError(ErrCodeNotInRoom, "join a project before sending"))
		return
	}
	if cmd.ProjectID != "" && cmd.ProjectID != s.projectID {
		h.reject(c, cmd.RequestID, coreError(ErrCodeNotInRoom, "not joined to this project"))
		return
	}

	content, cerr := normalizeContent(cmd.Content, h.maxContentBytes)
	if cerr != nil {
		h.reject(c, cmd.RequestID, cerr)
		return
	}
	if cerr := h.authorize(ctx, "send", s.projectID, c.UserID); cerr != nil {
		h.reject(c, cmd.RequestID, cerr)
		return
	}
	// Only sends that reach the store use up the budget.
	if !s.limiter.allow(time.Now()) {
		h.reject(c, cmd.RequestID, coreError(ErrCodeRateLimited, "too many messages"))
		return
	}

	msg, err := h.persist(ctx, content, s.projectID, c.UserID)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("client_id", c.ID).
			Str("user_id", c.UserID).
			Str("project_id", s.projectID).
			Msg("failed to persist message")
		h.reject(c, cmd.RequestID, coreError(ErrCodePersistenceFailed, "message could not be saved"))
		return
	}

	if !submit(h, h.deliveries, delivery{sender: c, message: msg, requestID: cmd.RequestID}) {
		return
	}
	h.publish(ctx, msg)
}

// authorize fails closed: lookup errors reject the command too. command
// labels the rejection metric.
func (h *Hub) authorize(ctx context.Context, command, projectID, userID string) *CoreError {
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()

	ok, err := h.store.IsProjectMember(ctx, projectID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("project_id", projectID).Str("user_id", userID).Msg("membership lookup failed")
		return coreError(ErrCodeInternal, "membership lookup failed")
	}
	if !ok {
		observability.IncRejectedCommand(command)
		return coreError(ErrCodeUnauthorized, "not a member of this project")
	}
	return nil
}

func (h *Hub) persist(ctx context.Context, content, projectID, userID string) (*store.Message, error) {
	// Not tied to the connection: a disconnect does not abort a write in flight.
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "store.append_message", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	start := time.Now()
	msg, err := h.store.AppendMessage(ctx, content, projectID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		observability.ObservePersist("error", time.Since(start))
		return nil, err
	}
	observability.ObservePersist("ok", time.Since(start))
	return msg, nil
}

func (h *Hub) publish(ctx context.Context, msg *store.Message) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := h.publisher.Publish(ctx, RoutingKeyMessageCreated, MessageCreated{
		ID:        msg.ID,
		ProjectID: msg.ProjectID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish message event")
	}
}

func (h *Hub) reject(c *Client, requestID string, err *CoreError) {
	submit(h, h.replies, reply{client: c, event: errorEvent(requestID, err)})
}
