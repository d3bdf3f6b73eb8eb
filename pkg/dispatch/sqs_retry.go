package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/dmitrymomot/notifykit/pkg/awsutil"
)

// sqsBatchLimit is the SendMessageBatch entry limit.
const sqsBatchLimit = 10

// SQSAPI is the part of *sqs.Client the retry queue uses.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, opts ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSRetryQueue publishes failed items as JSON messages to an SQS queue.
type SQSRetryQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSRetryQueue(client SQSAPI, queueURL string) *SQSRetryQueue {
	return &SQSRetryQueue{client: client, queueURL: queueURL}
}

// NewSQSRetryQueueFromConfig builds the SQS client from AWS settings.
func NewSQSRetryQueueFromConfig(ctx context.Context, cfg awsutil.Config, queueURL string) (*SQSRetryQueue, error) {
	awsCfg, err := awsutil.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSQSRetryQueue(sqs.NewFromConfig(awsCfg), queueURL), nil
}

// Push sends items in batches of ten. Entries SQS rejects are reported
// together in the returned error.
func (q *SQSRetryQueue) Push(ctx context.Context, items ...RetryItem) error {
	var errs []error
	for start := 0; start < len(items); start += sqsBatchLimit {
		chunk := items[start:min(start+sqsBatchLimit, len(items))]
		entries := make([]types.SendMessageBatchRequestEntry, 0, len(chunk))
		for i, it := range chunk {
			body, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("marshal retry item: %w", err)
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(i)),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"EventKey": {DataType: aws.String("String"), StringValue: aws.String(it.EventKey)},
					"Channel":  {DataType: aws.String("String"), StringValue: aws.String(string(it.Channel))},
					"Stage":    {DataType: aws.String("String"), StringValue: aws.String(string(it.Stage))},
				},
			})
		}
		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return errors.Join(ErrRetryQueueFailed, err)
		}
		for _, f := range out.Failed {
			errs = append(errs, fmt.Errorf("entry %s: %s", aws.ToString(f.Id), aws.ToString(f.Message)))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrRetryQueueFailed}, errs...)...)
	}
	return nil
}
