package projection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taskstream/internal/aggregate"
	id "taskstream/pkg/domain"
	"taskstream/pkg/platform/circuit"
)

const (
	cacheTTL       = 5 * time.Minute
	cacheOpTimeout = 250 * time.Millisecond
)

// Cache layers Redis over the board. It is a derived, invalidatable view:
// on any Redis misbehavior the circuit opens and reads come straight from
// the board's folds, which remain correct on their own.
type Cache struct {
	board   *Board
	rdb     *redis.Client
	breaker *circuit.Breaker
	log     *logrus.Logger
}

// NewCache wraps the board. A nil client disables Redis entirely.
func NewCache(board *Board, rdb *redis.Client, log *logrus.Logger) *Cache {
	return &Cache{
		board: board,
		rdb:   rdb,
		breaker: circuit.New("projection-cache",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2)),
		log: log,
	}
}

// Breaker exposes the circuit for health reporting.
func (c *Cache) Breaker() *circuit.Breaker { return c.breaker }

// Board returns the underlying authoritative view.
func (c *Cache) Board() *Board { return c.board }

// Publish folds events into the board and invalidates affected cache keys.
// Implements the same publisher contract as the board, so it can take the
// board's slot in the processor's publisher list.
func (c *Cache) Publish(events []aggregate.Event) {
	c.board.Publish(events)
	if c.rdb == nil {
		return
	}

	keys := make([]string, 0, len(events)*2)
	for _, event := range events {
		switch event.AggregateType {
		case aggregate.TypeTask:
			keys = append(keys, taskKey(id.TaskID(event.AggregateID)))
			// Task transitions move the project's open count.
			if view, ok := c.board.Task(id.TaskID(event.AggregateID)); ok {
				keys = append(keys, projectKey(view.ProjectID))
			}
		case aggregate.TypeProject:
			keys = append(keys, projectKey(id.ProjectID(event.AggregateID)))
		case aggregate.TypeAssignment:
			keys = append(keys, assignmentKey(id.AssignmentID(event.AggregateID)))
		}
	}
	if len(keys) == 0 {
		return
	}

	// Invalidation leaves the command path: the board above is already
	// consistent and authoritative, so a slow Redis must not hold the
	// processor's publish step (and the per-aggregate lock) hostage. DEL
	// only evicts; a late arrival costs a cache miss, never a stale read.
	go c.invalidate(keys)
}

func (c *Cache) invalidate(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.fail(err)
		return
	}
	c.succeed()
}

// Task reads through the cache, falling back to the board fold.
func (c *Cache) Task(ctx context.Context, taskID id.TaskID) (TaskView, bool) {
	var cached TaskView
	if c.lookup(ctx, taskKey(taskID), &cached) {
		return cached, true
	}
	view, ok := c.board.Task(taskID)
	if ok {
		c.store(ctx, taskKey(taskID), view)
	}
	return view, ok
}

// Project reads through the cache, falling back to the board fold.
func (c *Cache) Project(ctx context.Context, projectID id.ProjectID) (ProjectView, bool) {
	var cached ProjectView
	if c.lookup(ctx, projectKey(projectID), &cached) {
		return cached, true
	}
	view, ok := c.board.Project(projectID)
	if ok {
		c.store(ctx, projectKey(projectID), view)
	}
	return view, ok
}

// Assignment reads through the cache, falling back to the board fold.
func (c *Cache) Assignment(ctx context.Context, assignmentID id.AssignmentID) (AssignmentView, bool) {
	var cached AssignmentView
	if c.lookup(ctx, assignmentKey(assignmentID), &cached) {
		return cached, true
	}
	view, ok := c.board.Assignment(assignmentID)
	if ok {
		c.store(ctx, assignmentKey(assignmentID), view)
	}
	return view, ok
}

// lookup returns true only on a usable cache hit. While the circuit is open
// reads skip Redis; writes keep probing so the breaker can close again.
func (c *Cache) lookup(ctx context.Context, key string, dest any) bool {
	if c.rdb == nil || c.breaker.IsOpen() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.succeed()
		return false
	}
	if err != nil {
		c.fail(err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A corrupt entry is a cache bug, not a Redis outage; drop it.
		c.rdb.Del(ctx, key)
		return false
	}
	c.succeed()
	return true
}

func (c *Cache) store(ctx context.Context, key string, view any) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		c.fail(err)
		return
	}
	c.succeed()
}

func (c *Cache) fail(err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.log.WithError(err).Warn("projection cache circuit opened, serving folds directly")
	}
}

func (c *Cache) succeed() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.log.Info("projection cache circuit closed")
	}
}

func taskKey(taskID id.TaskID) string { return "projection:task:" + uuid.UUID(taskID).String() }

func projectKey(projectID id.ProjectID) string {
	return "projection:project:" + uuid.UUID(projectID).String()
}

func assignmentKey(assignmentID id.AssignmentID) string {
	return "projection:assignment:" + uuid.UUID(assignmentID).String()
}
