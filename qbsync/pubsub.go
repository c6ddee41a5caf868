package qbsync

import (
	"context"
	"encoding/json"
	"io"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

type SyncPubSubPayload struct {
	JobId   string      `json:"job_id"`
	RealmId string      `json:"realm_id"`
	Options SyncOptions `json:"options"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishSyncRun queues a sync job. With QBO_SYNC_INLINE_WORKER set the job
// runs in-process instead, which keeps local development free of pub/sub.
func PublishSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if config.SyncInlineWorker() {
		go processSyncRun(payload)
		return nil
	}

	topicName := utils.StringFromEnv("QBO_SYNC_TOPIC", "qbo-sync")
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if utils.BoolFromEnv("QBO_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler receives pub/sub push deliveries. It always returns 204:
// a retryable failure is recorded on the sync log, and redelivering the
// message would only duplicate the failed row.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.BoolFromEnv("QBO_ENABLE_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.JobId == "" || payload.RealmId == "" {
			c.Status(204)
			return
		}

		processSyncRun(payload)
		c.Status(204)
	}
}

// processSyncRun executes the job on a background context so it survives the
// delivery request (or, inline, the HTTP request) being torn down.
func processSyncRun(payload SyncPubSubPayload) {
	svc := getService()
	ctx := utils.SetRealmIdInContext(context.Background(), payload.RealmId)
	_ = svc.Orchestrator.Run(ctx, payload.JobId, payload.RealmId, payload.Options)
}
