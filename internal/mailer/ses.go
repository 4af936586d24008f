package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESOptions configures the Amazon SES transport
type SESOptions struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// sesAPI is the subset of the SES v2 client used for sending
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport sends messages with the SES v2 SendEmail API
type SESTransport struct {
	client sesAPI
	sender Sender
	opts   SESOptions
}

// NewSESTransport builds an SES client from the default AWS credential chain,
// or from static credentials when both keys are set.
func NewSESTransport(ctx context.Context, opts SESOptions, sender Sender) (*SESTransport, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESTransport(sesv2.NewFromConfig(cfg), opts, sender), nil
}

func newSESTransport(client sesAPI, opts SESOptions, sender Sender) *SESTransport {
	return &SESTransport{client: client, sender: sender, opts: opts}
}

func (t *SESTransport) Name() string {
	return "ses"
}

// Send delivers a single message through SES
func (t *SESTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	if err := validateRecipient(msg); err != nil {
		return nil, err
	}

	from := t.sender.from(msg.SenderName)
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
	}

	if msg.HTML != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if t.opts.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(t.opts.ConfigurationSet)
	}
	if id := msg.Headers["X-Customer-ID"]; id != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("customer_id"), Value: aws.String(id)},
		}
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("SES send failed: %w", err)
	}

	return &Result{MessageID: aws.ToString(out.MessageId), SentFrom: from}, nil
}
