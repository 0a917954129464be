package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// mockSQS records every SendMessage call.
type mockSQS struct {
	mu    sync.Mutex
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	id := "msg-1"
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// mockCloudWatch records every PutMetricData call and can fail on demand.
type mockCloudWatch struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}
