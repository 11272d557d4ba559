// Package alert publishes poison-pill alerts for the Executor's Archive
// handler: required delivery to an SNS topic, plus an optional Slack
// supplement that never affects the handler's outcome.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/slack-go/slack"
)

// snsAPI is the subset of the SNS client this package depends on.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends the poison-pill alert.
type Publisher struct {
	sns       snsAPI
	topicARN  string
	slack     *slack.Client
	slackChan string
	logger    *slog.Logger
}

// NewPublisher builds a Publisher. slackClient/slackChannel are optional;
// when slackChannel is empty the Slack supplement is skipped entirely.
func NewPublisher(api snsAPI, topicARN string, slackClient *slack.Client, slackChannel string, logger *slog.Logger) *Publisher {
	return &Publisher{sns: api, topicARN: topicARN, slack: slackClient, slackChan: slackChannel, logger: logger}
}

// maxExcerptLen is the cap on the error-message excerpt included in the
// alert body (spec.md §4.3: "a ≤200-char error-message excerpt").
const maxExcerptLen = 200

// Publish sends the required SNS alert. A failure here is the only one
// that matters for the handler's outcome (spec.md §4.3: alert-publish
// failure causes the outcome to be FAILED). The Slack supplement, if
// configured, is attempted afterward and its failure is only logged.
func (p *Publisher) Publish(ctx context.Context, sourceQueue, archiveLocation, errorMessage string) error {
	excerpt := errorMessage
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen] + "..."
	}

	subject := fmt.Sprintf("Poison Pill Detected: %s", sourceQueue)
	body := fmt.Sprintf("Archived to %s\n\n%s", archiveLocation, excerpt)

	_, err := p.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("alert: sns publish: %w", err)
	}

	p.publishSlackBestEffort(subject, body)
	return nil
}

func (p *Publisher) publishSlackBestEffort(subject, body string) {
	if p.slack == nil || p.slackChan == "" {
		return
	}
	_, _, err := p.slack.PostMessage(p.slackChan, slack.MsgOptionText(subject+"\n"+body, false))
	if err != nil {
		p.logger.Warn("slack alert supplement failed", "error", err, "channel", p.slackChan)
	}
}
