package mail

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailer sends the platform invite email. A nil Mailer means mail is
// not configured and invitations are created silently; the admin then
// directs the user to the passwordless login flow.
type Mailer interface {
	SendInvite(ctx context.Context, email, firstName string) error
}

// Sender delivers invitations through Mailgun.
type Sender struct {
	mg          mailgun.Mailgun
	fromAddress string
	siteURL     string
}

// NewSenderFromEnv builds a Sender from APP_MAILGUN_API_KEY,
// APP_MAILGUN_DOMAIN, APP_MAILGUN_FROM and APP_SITE_URL. Returns
// (nil, nil) when the API key is unset.
func NewSenderFromEnv() (*Sender, error) {
	apiKey := os.Getenv("APP_MAILGUN_API_KEY")
	if apiKey == "" {
		return nil, nil
	}

	domain := os.Getenv("APP_MAILGUN_DOMAIN")
	if domain == "" {
		return nil, fmt.Errorf("APP_MAILGUN_DOMAIN is required when APP_MAILGUN_API_KEY is set")
	}
	fromAddress := os.Getenv("APP_MAILGUN_FROM")
	if fromAddress == "" {
		fromAddress = "crm@" + domain
	}
	siteURL := os.Getenv("APP_SITE_URL")
	if siteURL == "" {
		return nil, fmt.Errorf("APP_SITE_URL is required when APP_MAILGUN_API_KEY is set")
	}

	log.Printf("invite mail enabled via mailgun domain %s", domain)
	return &Sender{
		mg:          mailgun.NewMailgun(domain, apiKey),
		fromAddress: fromAddress,
		siteURL:     siteURL,
	}, nil
}

// SendInvite emails the new user a pointer to the passwordless login
// flow. Account creation never depends on delivery succeeding.
func (s *Sender) SendInvite(ctx context.Context, email, firstName string) error {
	greeting := "Hello"
	if firstName != "" {
		greeting = "Hello " + firstName
	}
	body := fmt.Sprintf(`%s,

You have been invited to the CRM. Sign in with your email address using
the "Login with email code" option:

%s/login

If you did not expect this invitation, please ignore this email.`, greeting, s.siteURL)

	message := s.mg.NewMessage(s.fromAddress, "You have been invited to the CRM", body, email)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send invite email: %w", err)
	}
	log.Printf("invite email sent to %s (message id %s)", email, id)
	return nil
}
