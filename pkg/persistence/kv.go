package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// KV is the Redis-backed Gateway. Role state lives in a string key per
// node (JSON); the log lives in a Redis list per node (one JSON entry per
// element), so AppendLog is a single RPUSH and the dense-index invariant
// maps onto list positions.
type KV struct {
	client    *redis.Client
	keyPrefix string
	opTimeout time.Duration
}

// KVConfig holds the Redis connection settings.
type KVConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	OpTimeout time.Duration
}

// NewKV connects to Redis and verifies the connection with a ping.
func NewKV(ctx context.Context, cfg KVConfig) (*KV, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "coordinator"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, coordinationerr.Newf(component, "NewKV", coordinationerr.KindUnavailable, cfg.Addr, err)
	}
	return &KV{client: client, keyPrefix: cfg.KeyPrefix, opTimeout: cfg.OpTimeout}, nil
}

// opCtx bounds each Redis call. Callers reach the gateway from inside the
// consensus core's per-node critical section, which carries no context, so
// the gateway owns its own operation deadline.
func (k *KV) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), k.opTimeout)
}

func (k *KV) stateKey(nodeID string) string { return k.keyPrefix + ":state:" + nodeID }
func (k *KV) logKey(nodeID string) string   { return k.keyPrefix + ":log:" + nodeID }
func (k *KV) nodesKey() string              { return k.keyPrefix + ":nodes" }

func (k *KV) LoadState(nodeID string) (*models.ConsensusState, bool, error) {
	ctx, cancel := k.opCtx()
	defer cancel()
	data, err := k.client.Get(ctx, k.stateKey(nodeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coordinationerr.Newf(component, "LoadState", coordinationerr.KindUnavailable, nodeID, err)
	}
	var state models.ConsensusState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, coordinationerr.Newf(component, "LoadState", coordinationerr.KindIntegrityFailure, nodeID, err)
	}
	return &state, true, nil
}

func (k *KV) SaveState(nodeID string, state models.ConsensusState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return coordinationerr.Newf(component, "SaveState", coordinationerr.KindInternal, nodeID, err)
	}
	ctx, cancel := k.opCtx()
	defer cancel()
	pipe := k.client.TxPipeline()
	pipe.Set(ctx, k.stateKey(nodeID), data, 0)
	pipe.SAdd(ctx, k.nodesKey(), nodeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return coordinationerr.Newf(component, "SaveState", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (k *KV) AppendLog(nodeID string, entry models.ConsensusEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return coordinationerr.Newf(component, "AppendLog", coordinationerr.KindInternal, nodeID, err)
	}
	ctx, cancel := k.opCtx()
	defer cancel()
	pipe := k.client.TxPipeline()
	pipe.RPush(ctx, k.logKey(nodeID), data)
	pipe.SAdd(ctx, k.nodesKey(), nodeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return coordinationerr.Newf(component, "AppendLog", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (k *KV) Log(nodeID string) ([]models.ConsensusEntry, error) {
	ctx, cancel := k.opCtx()
	defer cancel()
	return k.readLog(ctx, nodeID)
}

func (k *KV) readLog(ctx context.Context, nodeID string) ([]models.ConsensusEntry, error) {
	raw, err := k.client.LRange(ctx, k.logKey(nodeID), 0, -1).Result()
	if err != nil {
		return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindUnavailable, nodeID, err)
	}
	log := make([]models.ConsensusEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.ConsensusEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindIntegrityFailure, nodeID, err)
		}
		log = append(log, entry)
	}
	return log, nil
}

func (k *KV) MarkCommitted(nodeID string, index int, at time.Time) error {
	return k.stamp(nodeID, "MarkCommitted", index, func(e *models.ConsensusEntry) bool {
		if e.CommittedAt.IsZero() {
			e.CommittedAt = at
			return true
		}
		return false
	})
}

func (k *KV) MarkApplied(nodeID string, index int, at time.Time) error {
	return k.stamp(nodeID, "MarkApplied", index, func(e *models.ConsensusEntry) bool {
		if e.AppliedAt.IsZero() {
			e.AppliedAt = at
			return true
		}
		return false
	})
}

func (k *KV) stamp(nodeID, op string, index int, mark func(*models.ConsensusEntry) bool) error {
	ctx, cancel := k.opCtx()
	defer cancel()
	log, err := k.readLog(ctx, nodeID)
	if err != nil {
		return err
	}
	if index >= len(log) {
		return coordinationerr.New(component, op, coordinationerr.KindInvalidArgument)
	}
	pipe := k.client.TxPipeline()
	for i := range log {
		if log[i].Index > index {
			continue
		}
		if !mark(&log[i]) {
			continue
		}
		data, err := json.Marshal(log[i])
		if err != nil {
			return coordinationerr.Newf(component, op, coordinationerr.KindInternal, nodeID, err)
		}
		pipe.LSet(ctx, k.logKey(nodeID), int64(i), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coordinationerr.Newf(component, op, coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (k *KV) Snapshot() (*SnapshotData, error) {
	ctx, cancel := k.opCtx()
	defer cancel()
	nodeIDs, err := k.client.SMembers(ctx, k.nodesKey()).Result()
	if err != nil {
		return nil, coordinationerr.Newf(component, "Snapshot", coordinationerr.KindUnavailable, "", err)
	}
	snap := &SnapshotData{
		TakenAt: time.Now().UTC(),
		States:  make(map[string]models.ConsensusState, len(nodeIDs)),
		Logs:    make(map[string][]models.ConsensusEntry, len(nodeIDs)),
	}
	for _, nodeID := range nodeIDs {
		if state, found, err := k.LoadState(nodeID); err == nil && found {
			snap.States[nodeID] = *state
		}
		log, err := k.readLog(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		if len(log) > 0 {
			snap.Logs[nodeID] = log
		}
	}
	return snap, nil
}

func (k *KV) Close() error { return k.client.Close() }
