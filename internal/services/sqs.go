package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"toshima-parking-finder/internal/models"
)

// SQSAPI is the subset of *sqs.Client used by TaskQueue
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SendMessageBatch accepts at most 10 entries
const maxSQSBatch = 10

// TaskQueue hands station pages to the station workers
type TaskQueue struct {
	client   SQSAPI
	queueURL string
}

// NewTaskQueue creates a queue publisher
func NewTaskQueue(client SQSAPI, queueURL string) *TaskQueue {
	return &TaskQueue{client: client, queueURL: queueURL}
}

// EnqueueStations sends one task per station and returns how many were accepted
func (q *TaskQueue) EnqueueStations(ctx context.Context, tasks []models.StationTask) (int, error) {
	sent := 0
	for start := 0; start < len(tasks); start += maxSQSBatch {
		end := min(start+maxSQSBatch, len(tasks))

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, task := range tasks[start:end] {
			body, err := json.Marshal(task)
			if err != nil {
				return sent, fmt.Errorf("failed to marshal task message: %w", err)
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"RunID": {
						DataType:    aws.String("String"),
						StringValue: aws.String(task.RunID),
					},
					"Station": {
						DataType:    aws.String("String"),
						StringValue: aws.String(task.Station.Name),
					},
				},
			})
		}

		result, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return sent, fmt.Errorf("failed to send messages to SQS: %w", err)
		}
		sent += len(result.Successful)
		if len(result.Failed) > 0 {
			f := result.Failed[0]
			return sent, fmt.Errorf("failed to send %d messages to SQS: %s", len(result.Failed), aws.ToString(f.Message))
		}
	}
	return sent, nil
}

// ParseStationTask decodes a queue message body
func ParseStationTask(body string) (models.StationTask, error) {
	var task models.StationTask
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return task, fmt.Errorf("failed to unmarshal task message: %w", err)
	}
	if task.Station.URL == "" {
		return task, fmt.Errorf("task %s has no station URL", task.TaskID)
	}
	return task, nil
}
