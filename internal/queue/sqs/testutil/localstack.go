// Package testutil starts LocalStack containers for SQS integration tests
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

const localstackImage = "localstack/localstack:3.0"

// LocalStackContainer wraps a LocalStack container running SQS
type LocalStackContainer struct {
	Container *localstack.LocalStackContainer
	Endpoint  string
	SQSClient *sqs.Client
	QueueURL  string
}

// QueueCounts holds the approximate message counts reported by SQS
type QueueCounts struct {
	Visible    int
	NotVisible int
}

// StartLocalStack starts a LocalStack container with the SQS service
func StartLocalStack(ctx context.Context, t *testing.T) (*LocalStackContainer, error) {
	t.Helper()

	container, err := localstack.Run(ctx,
		localstackImage,
		testcontainers.WithEnv(map[string]string{
			"SERVICES": "sqs",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("start localstack: %w", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get localstack endpoint: %w", err)
	}

	client, err := newSQSClient(ctx, "http://"+endpoint)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("create sqs client: %w", err)
	}

	return &LocalStackContainer{
		Container: container,
		Endpoint:  "http://" + endpoint,
		SQSClient: client,
	}, nil
}

func newSQSClient(ctx context.Context, endpoint string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "test",
		)),
	)
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

// CreateQueue creates a standard queue and returns its URL
func (l *LocalStackContainer) CreateQueue(ctx context.Context, name string) (string, error) {
	return l.create(ctx, name, nil)
}

// CreateQueueWithVisibility creates a standard queue with the given
// visibility timeout, for redelivery and visibility-extension tests
func (l *LocalStackContainer) CreateQueueWithVisibility(ctx context.Context, name string, seconds int) (string, error) {
	return l.create(ctx, name, map[string]string{
		"VisibilityTimeout": strconv.Itoa(seconds),
	})
}

// CreateFIFOQueue creates a FIFO queue with content-based deduplication
func (l *LocalStackContainer) CreateFIFOQueue(ctx context.Context, name string) (string, error) {
	return l.create(ctx, name+".fifo", map[string]string{
		"FifoQueue":                 "true",
		"ContentBasedDeduplication": "true",
	})
}

// CreateFIFOQueueWithDeduplication creates a FIFO queue that requires an
// explicit MessageDeduplicationId on every send
func (l *LocalStackContainer) CreateFIFOQueueWithDeduplication(ctx context.Context, name string) (string, error) {
	return l.create(ctx, name+".fifo", map[string]string{
		"FifoQueue":                 "true",
		"ContentBasedDeduplication": "false",
	})
}

func (l *LocalStackContainer) create(ctx context.Context, name string, attrs map[string]string) (string, error) {
	input := &sqs.CreateQueueInput{QueueName: aws.String(name)}
	if len(attrs) > 0 {
		input.Attributes = attrs
	}
	result, err := l.SQSClient.CreateQueue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create queue %s: %w", name, err)
	}
	l.QueueURL = *result.QueueUrl
	return l.QueueURL, nil
}

// Counts returns the approximate visible and in-flight message counts for
// the most recently created queue
func (l *LocalStackContainer) Counts(ctx context.Context) (QueueCounts, error) {
	var counts QueueCounts
	if l.QueueURL == "" {
		return counts, fmt.Errorf("no queue created")
	}

	result, err := l.SQSClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(l.QueueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return counts, err
	}

	counts.Visible, _ = strconv.Atoi(result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	counts.NotVisible, _ = strconv.Atoi(result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)])
	return counts, nil
}

// Terminate stops and removes the container
func (l *LocalStackContainer) Terminate(ctx context.Context) error {
	if l.Container != nil {
		return l.Container.Terminate(ctx)
	}
	return nil
}
