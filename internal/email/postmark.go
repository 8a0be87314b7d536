package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.postmarkapp.com"
	}
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendPasswordReset sends a password reset token to the given address.
func (c *Client) SendPasswordReset(toEmail, token string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	msg := postmarkEmail{
		From:    c.fromEmail,
		To:      toEmail,
		Subject: "Reset your Fridge.IO password",
		HtmlBody: fmt.Sprintf(
			`<p>Someone asked to reset the password for this address.</p>`+
				`<p>Your reset code is: <strong>%s</strong></p>`+
				`<p>The code expires in one hour. If you didn't request this, you can ignore this email.</p>`,
			token,
		),
		TextBody: fmt.Sprintf(
			"Someone asked to reset the password for this address.\n\n"+
				"Your reset code is: %s\n\n"+
				"The code expires in one hour. If you didn't request this, you can ignore this email.",
			token,
		),
	}

	return c.send(msg)
}

func (c *Client) send(msg postmarkEmail) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
	return nil
}
