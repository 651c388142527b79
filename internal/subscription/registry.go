// Package subscription tracks live sessions, their topic memberships, and
// per-aggregate delivery cursors. It holds routing metadata only; business
// state lives in the event log.
package subscription

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"taskstream/internal/platform/metrics"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// TopicKind selects the filter dimension of a Topic.
type TopicKind string

const (
	TopicAll      TopicKind = "all"
	TopicProject  TopicKind = "project"
	TopicAssignee TopicKind = "assignee"
)

// Topic is a logical event filter. Comparable, usable as a map key.
type Topic struct {
	Kind TopicKind
	ID   uuid.UUID
}

func AllTopic() Topic { return Topic{Kind: TopicAll} }

func ProjectTopic(p id.ProjectID) Topic { return Topic{Kind: TopicProject, ID: uuid.UUID(p)} }

func AssigneeTopic(u id.UserID) Topic { return Topic{Kind: TopicAssignee, ID: uuid.UUID(u)} }

func (t Topic) String() string {
	if t.Kind == TopicAll {
		return string(TopicAll)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// ParseTopic parses "all", "project:<uuid>" or "assignee:<uuid>".
func ParseTopic(raw string) (Topic, error) {
	if raw == string(TopicAll) {
		return AllTopic(), nil
	}
	kind, rest, found := strings.Cut(raw, ":")
	if !found {
		return Topic{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed topic %q", raw)
	}
	switch TopicKind(kind) {
	case TopicProject:
		projectID, err := id.ParseProjectID(rest)
		if err != nil {
			return Topic{}, err
		}
		return ProjectTopic(projectID), nil
	case TopicAssignee:
		userID, err := id.ParseUserID(rest)
		if err != nil {
			return Topic{}, err
		}
		return AssigneeTopic(userID), nil
	default:
		return Topic{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown topic kind %q", kind)
	}
}

// Route carries the routing facets of one committed event, resolved by the
// caller from its read views. Zero ProjectID or empty Assignees simply match
// no project/assignee topic.
type Route struct {
	AggregateID uuid.UUID
	ProjectID   id.ProjectID
	Assignees   []id.UserID
}

// ClientInfo is connect-time metadata kept for ops visibility.
type ClientInfo struct {
	Browser string
	OS      string
	Mobile  bool
}

type session struct {
	topics map[Topic]struct{}
	client ClientInfo

	mu      sync.Mutex
	cursors map[uuid.UUID]uint64
}

// Registry is safe for concurrent use; sessions do not serialize against
// each other beyond short map updates.
type Registry struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*session
	byTopic  map[Topic]map[id.SessionID]struct{}
	metrics  *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[id.SessionID]*session),
		byTopic:  make(map[Topic]map[id.SessionID]struct{}),
		metrics:  m,
	}
}

// Connect registers a session and captures its client metadata. Idempotent;
// reconnecting refreshes the metadata and keeps existing subscriptions.
func (r *Registry) Connect(sessionID id.SessionID, rawUserAgent string) {
	info := ClientInfo{}
	if rawUserAgent != "" {
		ua := useragent.New(rawUserAgent)
		browser, version := ua.Browser()
		info = ClientInfo{
			Browser: strings.TrimSpace(browser + " " + version),
			OS:      ua.OS(),
			Mobile:  ua.Mobile(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[sessionID]
	if sess == nil {
		sess = &session{
			topics:  make(map[Topic]struct{}),
			cursors: make(map[uuid.UUID]uint64),
		}
		r.sessions[sessionID] = sess
	}
	sess.client = info
}

// Subscribe adds a topic membership, creating the session if needed.
func (r *Registry) Subscribe(sessionID id.SessionID, topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.sessions[sessionID]
	if sess == nil {
		sess = &session{
			topics:  make(map[Topic]struct{}),
			cursors: make(map[uuid.UUID]uint64),
		}
		r.sessions[sessionID] = sess
	}
	if _, already := sess.topics[topic]; already {
		return
	}
	sess.topics[topic] = struct{}{}

	members := r.byTopic[topic]
	if members == nil {
		members = make(map[id.SessionID]struct{})
		r.byTopic[topic] = members
	}
	members[sessionID] = struct{}{}
	r.metrics.ActiveSubscriptions.Inc()
}

// Unsubscribe removes one topic membership; unknown pairs are a no-op.
func (r *Registry) Unsubscribe(sessionID id.SessionID, topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(sessionID, topic)
}

func (r *Registry) unsubscribeLocked(sessionID id.SessionID, topic Topic) {
	sess := r.sessions[sessionID]
	if sess == nil {
		return
	}
	if _, held := sess.topics[topic]; !held {
		return
	}
	delete(sess.topics, topic)
	if members := r.byTopic[topic]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.byTopic, topic)
		}
	}
	r.metrics.ActiveSubscriptions.Dec()
}

// DropSession tears down every subscription the session holds. No delivery
// is attempted afterward.
func (r *Registry) DropSession(sessionID id.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[sessionID]
	if sess == nil {
		return
	}
	for topic := range sess.topics {
		r.unsubscribeLocked(sessionID, topic)
	}
	delete(r.sessions, sessionID)
}

// Resolve returns the distinct sessions whose topics match the route.
func (r *Registry) Resolve(route Route) []id.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make(map[id.SessionID]struct{})
	collect := func(topic Topic) {
		for sessionID := range r.byTopic[topic] {
			matched[sessionID] = struct{}{}
		}
	}
	collect(AllTopic())
	if !route.ProjectID.IsNil() {
		collect(ProjectTopic(route.ProjectID))
	}
	for _, assignee := range route.Assignees {
		if !assignee.IsNil() {
			collect(AssigneeTopic(assignee))
		}
	}

	out := make([]id.SessionID, 0, len(matched))
	for sessionID := range matched {
		out = append(out, sessionID)
	}
	return out
}

// Topics returns the session's current memberships.
func (r *Registry) Topics(sessionID id.SessionID) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess := r.sessions[sessionID]
	if sess == nil {
		return nil
	}
	out := make([]Topic, 0, len(sess.topics))
	for topic := range sess.topics {
		out = append(out, topic)
	}
	return out
}

// Client returns the metadata captured at connect.
func (r *Registry) Client(sessionID id.SessionID) (ClientInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess := r.sessions[sessionID]
	if sess == nil {
		return ClientInfo{}, false
	}
	return sess.client, true
}

// Advance moves the session's delivery cursor for an aggregate. It returns
// false when seq is at or behind the cursor, which marks a redelivery the
// transport may suppress.
func (r *Registry) Advance(sessionID id.SessionID, aggregateID uuid.UUID, seq uint64) bool {
	r.mu.RLock()
	sess := r.sessions[sessionID]
	r.mu.RUnlock()
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if seq <= sess.cursors[aggregateID] {
		return false
	}
	sess.cursors[aggregateID] = seq
	return true
}

// Cursor reports the last sequence delivered to the session for aggregateID.
func (r *Registry) Cursor(sessionID id.SessionID, aggregateID uuid.UUID) uint64 {
	r.mu.RLock()
	sess := r.sessions[sessionID]
	r.mu.RUnlock()
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cursors[aggregateID]
}
