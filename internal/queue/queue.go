// Package queue hands pipeline requests from the API to the workers, either
// in-process or through RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/worker"
)

// DefaultQueueName is the durable queue both sides declare.
const DefaultQueueName = "video_processing_queue"

// Publisher enqueues a pipeline run and returns without waiting for it.
type Publisher interface {
	Publish(ctx context.Context, req pipeline.Request) error
}

// Submitter accepts jobs without blocking; *worker.Dispatcher implements it.
type Submitter interface {
	Submit(job worker.Job) error
}

// Encode serialises a request as the message body.
func Encode(req pipeline.Request) ([]byte, error) {
	return json.Marshal(req)
}

// Decode parses and validates a message body.
func Decode(body []byte) (pipeline.Request, error) {
	var req pipeline.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return pipeline.Request{}, apperr.E(apperr.InvalidInput, "decode queue message", err)
	}
	if req.VideoID == "" || req.CreatorID == "" || req.URL == "" {
		return pipeline.Request{}, apperr.New(apperr.InvalidInput,
			fmt.Sprintf("queue message missing fields: %s", string(body)))
	}
	return req, nil
}
