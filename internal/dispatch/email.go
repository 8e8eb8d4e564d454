package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/chrisdurfee/authgate/pkg/logger"
)

// SESDispatcher delivers verification codes by email using AWS SES
type SESDispatcher struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewSESDispatcher(region, fromAddress string, log *slog.Logger) (*SESDispatcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESDispatcher{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      log,
	}, nil
}

func (d *SESDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Your verification code</h1>
        <p>Enter this code to confirm your sign-in:</p>
        <div class="code">%s</div>
        <p>The code expires in %s.</p>
        <p><strong>Didn't try to sign in?</strong><br>
        Someone may have entered your email address by mistake. You can safely ignore this message; no one can sign in without this code.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, delivery.Code, delivery.ExpiresIn)

	textBody := fmt.Sprintf(`Your verification code

Enter this code to confirm your sign-in:

%s

The code expires in %s.

Didn't try to sign in? Someone may have entered your email address by mistake. You can safely ignore this message; no one can sign in without this code.
`, delivery.Code, delivery.ExpiresIn)

	input := &ses.SendEmailInput{
		Source: aws.String(d.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{delivery.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := d.sesClient.SendEmail(ctx, input)
	if err != nil {
		d.logger.Error("failed to send verification code via SES",
			slog.String("email", logger.SanitizedEmail(delivery.Email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	d.logger.Info("verification code email sent",
		slog.String("email", logger.SanitizedEmail(delivery.Email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
