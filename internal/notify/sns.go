package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig - параметры подключения к AWS SNS
type SNSConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
}

// SNSPublisher публикует сообщения в топик SNS
type SNSPublisher struct {
	client snsAPI
}

func NewSNSPublisher(conf SNSConfig) (*SNSPublisher, error) {
	if conf.Region == "" {
		return nil, fmt.Errorf("sns region is required")
	}

	opts := sns.Options{
		Region:           conf.Region,
		RetryMode:        aws.RetryModeStandard,
		RetryMaxAttempts: 3,
	}
	if conf.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			conf.AccessKeyID,
			conf.SecretAccessKey,
			"",
		))
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}

	return &SNSPublisher{client: sns.New(opts)}, nil
}

func (p *SNSPublisher) Publish(ctx context.Context, topic string, payload []byte, subject string) error {
	if p == nil || p.client == nil {
		return ErrNilPublisher
	}
	if topic == "" {
		return ErrEmptyTopic
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(payload)),
	}
	if subject != "" {
		input.Subject = aws.String(subject)
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
