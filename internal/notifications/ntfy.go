package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "vidresolve/0.1.0"

// message is one ntfy publish. ntfy reads the title, tags and priority from
// request headers and the text from the body.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

// publisher posts messages to a single ntfy topic URL.
type publisher struct {
	topicURL string
	client   *http.Client
}

func (p *publisher) publish(ctx context.Context, m message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.topicURL, strings.NewReader(m.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	headers := map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "text/plain; charset=utf-8",
		"Title":        m.title,
		"Tags":         strings.Join(m.tags, ","),
		"Priority":     m.priority,
	}
	for name, value := range headers {
		if value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
