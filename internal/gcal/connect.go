package gcal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/hackgods/clinic-booking/internal/settings"
)

// AuthCodeURL is where the doctor grants offline calendar access.
func (n *Notifier) AuthCodeURL(state string) string {
	return n.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges the OAuth code, resolves the primary calendar and stores
// the link in settings. It returns the calendar id.
func (n *Notifier) Connect(ctx context.Context, code string) (string, error) {
	tok, err := n.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("gcal: exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", errors.New("gcal: google did not return a refresh token")
	}

	svc, err := n.newService(ctx, tok)
	if err != nil {
		return "", err
	}
	entry, err := svc.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gcal: resolve primary calendar: %w", err)
	}

	for key, value := range map[string]string{
		settings.GoogleRefreshToken: tok.RefreshToken,
		settings.GoogleCalendarID:   entry.Id,
		settings.GoogleConnected:    "1",
	} {
		if err := n.settings.Set(ctx, key, value); err != nil {
			return "", err
		}
	}
	n.logger.Info("google calendar connected", "calendar_id", entry.Id)
	return entry.Id, nil
}

func (n *Notifier) Disconnect(ctx context.Context) error {
	for _, key := range []string{settings.GoogleConnected, settings.GoogleRefreshToken, settings.GoogleCalendarID} {
		value := ""
		if key == settings.GoogleConnected {
			value = "0"
		}
		if err := n.settings.Set(ctx, key, value); err != nil {
			return err
		}
	}
	n.logger.Info("google calendar disconnected")
	return nil
}
