// Package notify sends customer notifications for order events.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SESClient is the slice of the SES API the mailer calls.
type SESClient interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESMailer struct {
	Client SESClient
	Sender string
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// NewSESMailer uses static credentials when a key pair is given, otherwise the default AWS chain.
func NewSESMailer(ctx context.Context, cfg SESConfig) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESMailer{Client: ses.NewFromConfig(awsCfg), Sender: cfg.Sender}, nil
}

func (m *SESMailer) Send(ctx context.Context, e Email) error {
	if m.Sender == "" {
		return fmt.Errorf("sender email address is not configured")
	}
	if e.To == "" {
		return fmt.Errorf("recipient email address is empty")
	}
	utf8 := aws.String("UTF-8")
	_, err := m.Client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.Sender),
		Destination: &types.Destination{ToAddresses: []string{e.To}},
		Message: &types.Message{
			Subject: &types.Content{Charset: utf8, Data: aws.String(e.Subject)},
			Body: &types.Body{
				Html: &types.Content{Charset: utf8, Data: aws.String(e.HTML)},
				Text: &types.Content{Charset: utf8, Data: aws.String(e.Text)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogMailer writes the message to the log instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, e Email) error {
	slog.Info("email (not sent)", "to", e.To, "subject", e.Subject, "body", e.Text)
	return nil
}
