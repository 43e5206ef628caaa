// Package amqpq is a job-queue adapter (§4.8.2, §6) backed by RabbitMQ via
// streadway/amqp: publish the job onto a durable work queue, consume the
// matching result off a shared reply queue, correlated by job id. A deployment without Temporal
// can use this as its sole long-running-step transport.
package amqpq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/taskforge/orchestrator/internal/jobqueue"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

type wireJob struct {
	JobID        string                    `json:"jobId"`
	TaskID       uuid.UUID                 `json:"taskId"`
	StepName     string                    `json:"stepName"`
	Input        map[string]any            `json:"input"`
	ContextID    string                    `json:"contextId"`
	Task         json.RawMessage           `json:"task"`
	Dependencies json.RawMessage           `json:"dependencies"`
	Attempt      int                       `json:"attempt"`
	ReplyTo      string                    `json:"replyTo"`
}

type wireOutcome struct {
	JobID   string          `json:"jobId"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Queue publishes jobs to a work queue and waits for a correlated reply on
// a shared results queue, matching replies to in-flight handles by job id.
type Queue struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	workQ   string
	replyQ  string
	log     *logger.Logger

	mu      sync.Mutex
	pending map[string]chan jobqueue.Outcome
}

// New dials RabbitMQ, declares the durable work queue and the shared reply
// queue, and starts the reply consumer goroutine.
func New(url, workQueue, replyQueue string, baseLog *logger.Logger) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqpq: open channel: %w", err)
	}
	for _, name := range []string{workQueue, replyQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("amqpq: declare queue %s: %w", name, err)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqpq: set QoS: %w", err)
	}

	q := &Queue{
		conn:    conn,
		ch:      ch,
		workQ:   workQueue,
		replyQ:  replyQueue,
		log:     baseLog.With("component", "AMQPJobQueue"),
		pending: make(map[string]chan jobqueue.Outcome),
	}
	if err := q.startReplyConsumer(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) startReplyConsumer() error {
	msgs, err := q.ch.Consume(q.replyQ, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpq: consume reply queue: %w", err)
	}
	go func() {
		for d := range msgs {
			var out wireOutcome
			if err := json.Unmarshal(d.Body, &out); err != nil {
				q.log.Warn("amqpq: malformed reply", "err", err)
				continue
			}
			q.deliver(out)
		}
	}()
	return nil
}

func (q *Queue) deliver(out wireOutcome) {
	q.mu.Lock()
	ch, ok := q.pending[out.JobID]
	if ok {
		delete(q.pending, out.JobID)
	}
	q.mu.Unlock()
	if !ok {
		return
	}
	outcome := jobqueue.Outcome{}
	if out.Error != "" {
		outcome.Err = fmt.Errorf("%s", out.Error)
	} else if len(out.Result) > 0 {
		_ = json.Unmarshal(out.Result, &outcome.Result)
	}
	ch <- outcome
	close(ch)
}

type handle struct{ ch chan jobqueue.Outcome }

func (h *handle) Done() <-chan jobqueue.Outcome { return h.ch }

// Enqueue publishes the job and registers a pending reply slot keyed by a
// fresh job id; the external worker fleet is expected to reply with the
// same id on the reply queue.
func (q *Queue) Enqueue(ctx context.Context, job jobqueue.Job) (jobqueue.Handle, error) {
	jobID := uuid.New().String()
	taskJSON, _ := json.Marshal(job.Task)
	depsJSON, _ := json.Marshal(job.Dependencies)

	wj := wireJob{
		JobID:        jobID,
		TaskID:       job.TaskID,
		StepName:     job.StepName,
		Input:        job.Input,
		ContextID:    job.ContextID,
		Task:         taskJSON,
		Dependencies: depsJSON,
		Attempt:      job.Attempt,
		ReplyTo:      q.replyQ,
	}
	body, err := json.Marshal(wj)
	if err != nil {
		return nil, fmt.Errorf("amqpq: marshal job: %w", err)
	}

	ch := make(chan jobqueue.Outcome, 1)
	q.mu.Lock()
	q.pending[jobID] = ch
	q.mu.Unlock()

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = q.ch.Publish("", q.workQ, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		ReplyTo:      q.replyQ,
		CorrelationId: jobID,
	})
	if err != nil {
		q.mu.Lock()
		delete(q.pending, jobID)
		q.mu.Unlock()
		return nil, fmt.Errorf("amqpq: publish: %w", err)
	}
	_ = publishCtx

	return &handle{ch: ch}, nil
}

func (q *Queue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
