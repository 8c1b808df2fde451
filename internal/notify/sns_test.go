package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSPublisherPublish(t *testing.T) {
	fake := &fakeSNS{}
	p := &SNSPublisher{client: fake}

	err := p.Publish(context.Background(), "arn:aws:sns:us-east-1:000000000000:marks", []byte(`{"user_id":"1"}`), "Marks Card Updated")
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:marks", aws.ToString(in.TopicArn))
	assert.Equal(t, `{"user_id":"1"}`, aws.ToString(in.Message))
	assert.Equal(t, "Marks Card Updated", aws.ToString(in.Subject))
}

func TestSNSPublisherErrors(t *testing.T) {
	fake := &fakeSNS{err: errors.New("throttled")}
	p := &SNSPublisher{client: fake}

	err := p.Publish(context.Background(), "arn", []byte("{}"), "")
	assert.ErrorContains(t, err, "throttled")

	err = p.Publish(context.Background(), "", []byte("{}"), "")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	var nilPub *SNSPublisher
	assert.ErrorIs(t, nilPub.Publish(context.Background(), "arn", nil, ""), ErrNilPublisher)
}

func TestNewSNSPublisherRequiresRegion(t *testing.T) {
	_, err := NewSNSPublisher(SNSConfig{})
	assert.Error(t, err)

	p, err := NewSNSPublisher(SNSConfig{Region: "us-east-1", Endpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.NotNil(t, p.client)
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), "", nil, ""))
}
