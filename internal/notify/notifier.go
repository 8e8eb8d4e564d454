package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/chrisdurfee/authgate/internal/geo"
	"github.com/chrisdurfee/authgate/pkg/logger"
)

// Notifier alerts a user that their account was accessed from an
// unrecognized device or location. Delivery is best-effort; sign-in flows
// never block on it.
type Notifier interface {
	NotifyUnrecognized(ctx context.Context, email string, location *geo.Location) error
}

// EmailNotifier sends sign-in alerts over AWS SES
type EmailNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewEmailNotifier(region, fromAddress string, log *slog.Logger) (*EmailNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &EmailNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      log,
	}, nil
}

func (n *EmailNotifier) NotifyUnrecognized(ctx context.Context, email string, location *geo.Location) error {
	where := "an unrecognized location"
	if location != nil {
		where = fmt.Sprintf("%s, %s, %s", location.City, location.Region, location.Country)
	}

	textBody := fmt.Sprintf(`New sign-in to your account

We noticed a sign-in to your account from a device we haven't seen before, near %s.

If this was you, no action is needed. The new device will be asked to confirm a verification code before it is trusted.

If this wasn't you, change your password now and review your trusted devices.
`, where)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("New sign-in from an unrecognized device"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	if _, err := n.sesClient.SendEmail(ctx, input); err != nil {
		n.logger.Error("failed to send sign-in alert",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send sign-in alert: %w", err)
	}

	n.logger.Info("sign-in alert sent", slog.String("email", logger.SanitizedEmail(email)))

	return nil
}

// LogNotifier records the alert without sending anything. Used in development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) NotifyUnrecognized(ctx context.Context, email string, location *geo.Location) error {
	attrs := []any{slog.String("email", logger.SanitizedEmail(email))}
	if location != nil {
		attrs = append(attrs,
			slog.String("city", location.City),
			slog.String("country", location.Country))
	}
	n.logger.Info("sign-in alert (not sent)", attrs...)
	return nil
}
