// Package mongo implements recovery.Store on MongoDB via mongo-driver/v2,
// grounded on the teacher's features/run/mongo, features/session/mongo, and
// features/runlog/mongo store packages: the same Options{Client, Database}
// constructor shape, index bootstrap on New, and a thin document<->domain
// translation layer, adapted from the teacher's v1 driver surface
// (primitive.ObjectID) to mongo-driver/v2's bson.ObjectID.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/recovery"
)

const (
	sessionsCollection    = "recovery_sessions"
	checkpointsCollection = "agent_checkpoints"
	errorsCollection      = "error_records"
	eventsCollection      = "run_events"
	quotaCollection       = "quota_counters"
	defaultTimeout        = 5 * time.Second
)

// Options configures the MongoDB-backed Store.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

// Store implements recovery.Store on top of MongoDB.
type Store struct {
	client      *mongodriver.Client
	sessions    *mongodriver.Collection
	checkpoints *mongodriver.Collection
	errors      *mongodriver.Collection
	events      *mongodriver.Collection
	quota       *mongodriver.Collection
	timeout     time.Duration
}

// New connects the Store to its five collections and ensures the indexes the
// Store's query patterns depend on.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("recovery/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("recovery/mongo: database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:      opts.Client,
		sessions:    db.Collection(sessionsCollection),
		checkpoints: db.Collection(checkpointsCollection),
		errors:      db.Collection(errorsCollection),
		events:      db.Collection(eventsCollection),
		quota:       db.Collection(quotaCollection),
		timeout:     timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("recovery/mongo: ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := s.checkpoints.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "agent_index", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.errors.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := s.events.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.quota.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "client_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	return nil
}

// Ping satisfies a health-check style pinger, mirroring the teacher's
// goa.design/clue/health.Pinger convention used by its mongo clients.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// --- document types -------------------------------------------------------

type sessionDoc struct {
	ID              bson.ObjectID  `bson:"_id,omitempty"`
	RunID           string         `bson:"run_id"`
	FormData        map[string]any `bson:"form_data,omitempty"`
	FileMetadata    map[string]any `bson:"file_metadata,omitempty"`
	Status          string         `bson:"status"`
	CompletedAgents []int          `bson:"completed_agents,omitempty"`
	ErrorContext    *errorDoc      `bson:"error_context,omitempty"`
	RetryCount      int            `bson:"retry_count"`
	CreatedAt       time.Time      `bson:"created_at"`
	ExpiresAt       time.Time      `bson:"expires_at"`
}

func toSessionDoc(sess recovery.RecoverySession) sessionDoc {
	d := sessionDoc{
		RunID:           sess.RunID,
		FormData:        sess.FormData,
		FileMetadata:    sess.FileMetadata,
		Status:          string(sess.Status),
		CompletedAgents: sess.CompletedAgents,
		RetryCount:      sess.RetryCount,
		CreatedAt:       sess.CreatedAt,
		ExpiresAt:       sess.ExpiresAt,
	}
	if sess.ErrorContext != nil {
		ed := toErrorDoc(*sess.ErrorContext)
		d.ErrorContext = &ed
	}
	return d
}

func (d sessionDoc) toDomain() recovery.RecoverySession {
	sess := recovery.RecoverySession{
		RunID:           d.RunID,
		FormData:        d.FormData,
		FileMetadata:    d.FileMetadata,
		Status:          recovery.Status(d.Status),
		CompletedAgents: d.CompletedAgents,
		RetryCount:      d.RetryCount,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
	if d.ErrorContext != nil {
		rec := d.ErrorContext.toDomain()
		sess.ErrorContext = &rec
	}
	return sess
}

type checkpointDoc struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	RunID          string        `bson:"run_id"`
	AgentIndex     int           `bson:"agent_index"`
	OutputJSON     []byte        `bson:"output_json,omitempty"`
	RawText        string        `bson:"raw_text,omitempty"`
	TokensIn       int           `bson:"tokens_in"`
	TokensOut      int           `bson:"tokens_out"`
	ThinkingTokens int           `bson:"thinking_tokens"`
	CostMicroUSD   int64         `bson:"cost_micro_usd"`
	ModelID        string        `bson:"model_id"`
	DurationMS     int64         `bson:"duration_ms"`
	CreatedAt      time.Time     `bson:"created_at"`
}

func toCheckpointDoc(cp recovery.AgentCheckpoint) checkpointDoc {
	return checkpointDoc{
		RunID:          cp.RunID,
		AgentIndex:     cp.AgentIndex,
		OutputJSON:     cp.OutputJSON,
		RawText:        cp.RawText,
		TokensIn:       cp.TokensIn,
		TokensOut:      cp.TokensOut,
		ThinkingTokens: cp.ThinkingTokens,
		CostMicroUSD:   cp.CostMicroUSD,
		ModelID:        cp.ModelID,
		DurationMS:     cp.DurationMS,
		CreatedAt:      cp.CreatedAt,
	}
}

func (d checkpointDoc) toDomain() recovery.AgentCheckpoint {
	return recovery.AgentCheckpoint{
		RunID:          d.RunID,
		AgentIndex:     d.AgentIndex,
		OutputJSON:     d.OutputJSON,
		RawText:        d.RawText,
		TokensIn:       d.TokensIn,
		TokensOut:      d.TokensOut,
		ThinkingTokens: d.ThinkingTokens,
		CostMicroUSD:   d.CostMicroUSD,
		ModelID:        d.ModelID,
		DurationMS:     d.DurationMS,
		CreatedAt:      d.CreatedAt,
	}
}

type errorDoc struct {
	ErrorID    string    `bson:"error_id"`
	RunID      string    `bson:"run_id"`
	Category   string    `bson:"category"`
	Type       string    `bson:"type"`
	Message    string    `bson:"message"`
	StackTrace string    `bson:"stack_trace,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toErrorDoc(rec recovery.ErrorRecord) errorDoc {
	return errorDoc{
		ErrorID:    rec.ErrorID,
		RunID:      rec.RunID,
		Category:   rec.Category,
		Type:       rec.Type,
		Message:    rec.Message,
		StackTrace: rec.StackTrace,
		CreatedAt:  rec.CreatedAt,
	}
}

func (d errorDoc) toDomain() recovery.ErrorRecord {
	return recovery.ErrorRecord{
		ErrorID:    d.ErrorID,
		RunID:      d.RunID,
		Category:   d.Category,
		Type:       d.Type,
		Message:    d.Message,
		StackTrace: d.StackTrace,
		CreatedAt:  d.CreatedAt,
	}
}

type eventDoc struct {
	ID      bson.ObjectID `bson:"_id,omitempty"`
	RunID   string        `bson:"run_id"`
	EventID int64         `bson:"event_id"`
	Type    string        `bson:"type"`
	TS      time.Time     `bson:"ts"`
	Payload bson.Raw      `bson:"payload"`
}

func toEventDoc(ev eventbus.Event) eventDoc {
	return eventDoc{
		RunID:   ev.RunID,
		EventID: ev.EventID,
		Type:    string(ev.Type),
		TS:      ev.TS,
		Payload: bson.Raw(ev.Payload),
	}
}

func (d eventDoc) toDomain() eventbus.Event {
	return eventbus.Event{
		RunID:   d.RunID,
		EventID: d.EventID,
		Type:    eventbus.EventType(d.Type),
		TS:      d.TS,
		Payload: []byte(d.Payload),
	}
}

type quotaDoc struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	ClientID string        `bson:"client_id"`
	Count    int           `bson:"count"`
}

// --- recovery.Store ---------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, sess recovery.RecoverySession) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.sessions.InsertOne(ctx, toSessionDoc(sess))
	if err != nil {
		return fmt.Errorf("recovery/mongo: create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, runID string) (recovery.RecoverySession, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return recovery.RecoverySession{}, recovery.ErrNotFound
	}
	if err != nil {
		return recovery.RecoverySession{}, fmt.Errorf("recovery/mongo: get session: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) UpdateSession(ctx context.Context, runID string, mutate func(*recovery.RecoverySession)) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sess, err := s.GetSession(ctx, runID)
	if err != nil {
		return err
	}
	mutate(&sess)

	_, err = s.sessions.ReplaceOne(ctx, bson.M{"run_id": runID}, toSessionDoc(sess))
	if err != nil {
		return fmt.Errorf("recovery/mongo: update session: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts the (RunID, AgentIndex) checkpoint, refusing to
// replace an existing one once the owning session has reached
// recovery.StatusCompleted, and refusing to skip ahead of the next expected
// AgentIndex (spec.md §4.4's checkpoint ordering invariant).
func (s *Store) SaveCheckpoint(ctx context.Context, cp recovery.AgentCheckpoint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sessDoc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.M{"run_id": cp.RunID}).Decode(&sessDoc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return recovery.ErrNotFound
		}
		return fmt.Errorf("recovery/mongo: save checkpoint: load session: %w", err)
	}

	var existing checkpointDoc
	err := s.checkpoints.FindOne(ctx, bson.M{"run_id": cp.RunID, "agent_index": cp.AgentIndex}).Decode(&existing)
	switch {
	case err == nil:
		if sessDoc.Status == string(recovery.StatusCompleted) {
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, cp.RunID, "cannot replace checkpoint on a completed run", nil)
		}
		_, err = s.checkpoints.ReplaceOne(ctx, bson.M{"run_id": cp.RunID, "agent_index": cp.AgentIndex}, toCheckpointDoc(cp))
		if err != nil {
			return fmt.Errorf("recovery/mongo: save checkpoint: replace: %w", err)
		}
		return nil
	case errors.Is(err, mongodriver.ErrNoDocuments):
		count, cErr := s.checkpoints.CountDocuments(ctx, bson.M{"run_id": cp.RunID})
		if cErr != nil {
			return fmt.Errorf("recovery/mongo: save checkpoint: count: %w", cErr)
		}
		if int(count) != cp.AgentIndex {
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, cp.RunID, "checkpoint ordering violation: preceding agent checkpoints are missing", nil)
		}
		if _, err := s.checkpoints.InsertOne(ctx, toCheckpointDoc(cp)); err != nil {
			return fmt.Errorf("recovery/mongo: save checkpoint: insert: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("recovery/mongo: save checkpoint: lookup: %w", err)
	}
}

func (s *Store) GetCheckpoints(ctx context.Context, runID string) ([]recovery.AgentCheckpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.checkpoints.Find(ctx, bson.M{"run_id": runID}, options.Find().SetSort(bson.D{{Key: "agent_index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("recovery/mongo: get checkpoints: %w", err)
	}
	defer cur.Close(ctx)

	var out []recovery.AgentCheckpoint
	for cur.Next(ctx) {
		var doc checkpointDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("recovery/mongo: get checkpoints: decode: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

func (s *Store) LogError(ctx context.Context, rec recovery.ErrorRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.errors.InsertOne(ctx, toErrorDoc(rec))
	if err != nil {
		return fmt.Errorf("recovery/mongo: log error: %w", err)
	}
	return nil
}

// DeleteSession discards a single session and its checkpoints/errors/events,
// for the user-initiated discard path (spec.md §6 DELETE /recovery-session/{id}).
func (s *Store) DeleteSession(ctx context.Context, runID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	idFilter := bson.M{"run_id": runID}
	if _, err := s.checkpoints.DeleteMany(ctx, idFilter); err != nil {
		return fmt.Errorf("recovery/mongo: delete session: delete checkpoints: %w", err)
	}
	if _, err := s.errors.DeleteMany(ctx, idFilter); err != nil {
		return fmt.Errorf("recovery/mongo: delete session: delete errors: %w", err)
	}
	if _, err := s.events.DeleteMany(ctx, idFilter); err != nil {
		return fmt.Errorf("recovery/mongo: delete session: delete events: %w", err)
	}
	res, err := s.sessions.DeleteOne(ctx, idFilter)
	if err != nil {
		return fmt.Errorf("recovery/mongo: delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return recovery.ErrNotFound
	}
	return nil
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{
		"status":     bson.M{"$in": []string{string(recovery.StatusCompleted), string(recovery.StatusFailed), string(recovery.StatusCanceled)}},
		"expires_at": bson.M{"$lt": now},
	}
	cur, err := s.sessions.Find(ctx, filter, options.Find().SetProjection(bson.M{"run_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("recovery/mongo: cleanup: find expired: %w", err)
	}
	var runIDs []string
	for cur.Next(ctx) {
		var doc sessionDoc
		if err := cur.Decode(&doc); err != nil {
			cur.Close(ctx)
			return 0, fmt.Errorf("recovery/mongo: cleanup: decode: %w", err)
		}
		runIDs = append(runIDs, doc.RunID)
	}
	cur.Close(ctx)
	if len(runIDs) == 0 {
		return 0, nil
	}

	idFilter := bson.M{"run_id": bson.M{"$in": runIDs}}
	if _, err := s.checkpoints.DeleteMany(ctx, idFilter); err != nil {
		return 0, fmt.Errorf("recovery/mongo: cleanup: delete checkpoints: %w", err)
	}
	if _, err := s.errors.DeleteMany(ctx, idFilter); err != nil {
		return 0, fmt.Errorf("recovery/mongo: cleanup: delete errors: %w", err)
	}
	if _, err := s.events.DeleteMany(ctx, idFilter); err != nil {
		return 0, fmt.Errorf("recovery/mongo: cleanup: delete events: %w", err)
	}
	res, err := s.sessions.DeleteMany(ctx, idFilter)
	if err != nil {
		return 0, fmt.Errorf("recovery/mongo: cleanup: delete sessions: %w", err)
	}
	return int(res.DeletedCount), nil
}

// IncrementAndCheckQuota performs the read-compare-increment as a single
// FindOneAndUpdate using $inc, relying on Mongo's per-document atomicity
// rather than a client-side transaction: the counter is incremented
// unconditionally and then compared, with a compensating decrement when the
// caller was over cap, so two concurrent callers can never both observe the
// same pre-increment count.
func (s *Store) IncrementAndCheckQuota(ctx context.Context, clientID string, cap int) (bool, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc quotaDoc
	err := s.quota.FindOneAndUpdate(
		ctx,
		bson.M{"client_id": clientID},
		bson.M{"$inc": bson.M{"count": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return false, 0, fmt.Errorf("recovery/mongo: increment quota: %w", err)
	}

	if doc.Count > cap {
		if _, err := s.quota.UpdateOne(ctx, bson.M{"client_id": clientID}, bson.M{"$inc": bson.M{"count": -1}}); err != nil {
			return false, 0, fmt.Errorf("recovery/mongo: increment quota: compensate: %w", err)
		}
		return false, 0, nil
	}
	return true, cap - doc.Count, nil
}

// RecordEvent implements eventbus.Journal.
func (s *Store) RecordEvent(ctx context.Context, ev eventbus.Event) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.events.InsertOne(ctx, toEventDoc(ev))
	if err != nil {
		return fmt.Errorf("recovery/mongo: record event: %w", err)
	}
	return nil
}

// ReadEventsAfter implements eventbus.Journal.
func (s *Store) ReadEventsAfter(ctx context.Context, runID string, afterEventID int64) ([]eventbus.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"run_id": runID, "event_id": bson.M{"$gt": afterEventID}}
	cur, err := s.events.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "event_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("recovery/mongo: read events: %w", err)
	}
	defer cur.Close(ctx)

	var out []eventbus.Event
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("recovery/mongo: read events: decode: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

var _ recovery.Store = (*Store)(nil)
var _ eventbus.Journal = (*Store)(nil)
