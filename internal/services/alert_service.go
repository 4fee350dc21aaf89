package services

import (
	"errors"
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/jobvine/sentinel/internal/sentinel"
)

// AlertService fans critical events out to the configured shoutrrr URLs
// (discord://, slack://, smtp://, ...). The audit sink invokes Send from its
// own goroutine; a failure here is logged by the sink and goes no further.
type AlertService struct {
	urls []string
}

// NewAlertService builds the dispatcher. With no URLs configured every Send
// is a no-op, which keeps the wiring unconditional.
func NewAlertService(urls []string) *AlertService {
	return &AlertService{urls: urls}
}

// Send delivers one critical event to every configured destination and
// joins the per-destination failures.
func (s *AlertService) Send(evt sentinel.SecurityEvent) error {
	if len(s.urls) == 0 {
		return nil
	}
	msg := fmt.Sprintf("[%s] %s\nidentity: %s\n%s",
		evt.Severity.String(), evt.Type, evt.Identity, evt.Details)

	var errs []error
	for _, url := range s.urls {
		if err := shoutrrr.Send(url, msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", redactURL(url), err))
		}
	}
	return errors.Join(errs...)
}

// redactURL strips everything after the scheme so credentials embedded in
// notification URLs never reach the logs.
func redactURL(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == ':' {
			return url[:i] + "://..."
		}
	}
	return "..."
}
