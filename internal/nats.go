package internal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	subjectRankUpdated    = "tft.rank.updated"
	subjectAccountRenamed = "tft.account.renamed"
	subjectSyncRequest    = "tft.sync.request"
)

// RankUpdatedEvent is published after every new rank snapshot.
type RankUpdatedEvent struct {
	PUUID        string    `json:"puuid"`
	GameName     string    `json:"gameName"`
	TagLine      string    `json:"tagLine"`
	Region       string    `json:"region"`
	QueueType    string    `json:"queueType"`
	Tier         string    `json:"tier"`
	Division     string    `json:"division"`
	LeaguePoints int       `json:"leaguePoints"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	RetrievedAt  time.Time `json:"retrievedAt"`
}

// AccountRenamedEvent is published when a sync detects a riot id change.
type AccountRenamedEvent struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
	Region   string `json:"region"`
}

// SyncRequestTask asks a worker to refresh one account out of band, used by
// command handlers that want a refresh without blocking the interaction.
type SyncRequestTask struct {
	GameName    string `json:"gameName"`
	TagLine     string `json:"tagLine"`
	Region      string `json:"region"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

type NATSClient struct {
	conn   *nats.Conn
	logger *Logger
}

func NewNATSClient(cfg *Config, logger *Logger) (*NATSClient, error) {
	conn, err := nats.Connect(cfg.NATSUrl,
		nats.Name(cfg.NATSClientID),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSClient{conn: conn, logger: logger}, nil
}

func (nc *NATSClient) Close() {
	if nc.conn != nil {
		nc.conn.Close()
	}
}

func (nc *NATSClient) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return nc.conn.Publish(subject, data)
}

func (nc *NATSClient) PublishRankUpdated(event RankUpdatedEvent) error {
	return nc.publish(subjectRankUpdated, event)
}

func (nc *NATSClient) PublishAccountRenamed(event AccountRenamedEvent) error {
	return nc.publish(subjectAccountRenamed, event)
}

func (nc *NATSClient) PublishSyncRequest(task SyncRequestTask) error {
	return nc.publish(subjectSyncRequest, task)
}

// identitySyncer is the slice of SyncService the worker needs.
type identitySyncer interface {
	SyncIdentity(ctx context.Context, gameName, tagLine, region string) (*RiotAccount, error)
	SyncRank(ctx context.Context, account *RiotAccount) (*RankSnapshot, error)
}

// StartSyncRequestWorker consumes on-demand refresh tasks on a queue group
// so multiple instances split the work. Worker failures are logged, never
// propagated; a bad task is dropped.
func (nc *NATSClient) StartSyncRequestWorker(syncer identitySyncer) (*nats.Subscription, error) {
	handler := func(msg *nats.Msg) {
		var task SyncRequestTask
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			nc.logger.Error("sync_task_unmarshal_failed").
				Component("nats").
				Operation("sync_request_worker").
				Err(err).
				Log()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		account, err := syncer.SyncIdentity(ctx, task.GameName, task.TagLine, task.Region)
		if err != nil {
			nc.logger.Warn("sync_task_identity_failed").
				Component("nats").
				Operation("sync_request_worker").
				Account("", task.GameName+"#"+task.TagLine, task.Region).
				Err(err).
				Log()
			return
		}

		if _, err := syncer.SyncRank(ctx, account); err != nil && !errors.Is(err, ErrNoRankedData) {
			nc.logger.Warn("sync_task_rank_failed").
				Component("nats").
				Operation("sync_request_worker").
				Account(account.PUUID, account.RiotID(), account.Region).
				Err(err).
				Log()
		}
	}

	sub, err := nc.conn.QueueSubscribe(subjectSyncRequest, "sync-workers", handler)
	if err != nil {
		return nil, err
	}

	nc.logger.Info("sync_request_worker_started").
		Component("nats").
		Operation("sync_request_worker").
		Log()
	return sub, nil
}
