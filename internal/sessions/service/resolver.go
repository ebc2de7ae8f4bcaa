package service

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/store"
)

// DefaultActivityRefreshInterval bounds how often a token's last-activity
// timestamp is written back during resolution. Requests inside the window
// only touch the store when something else changed.
const DefaultActivityRefreshInterval = 3 * time.Minute

// AuthorizationResolver turns raw request credentials into an immutable
// Identity. It never mutates request state; its only side effect is the
// token record write-back when reported client attributes drift from the
// stored ones.
type AuthorizationResolver struct {
	Store store.Store

	// ActivityRefreshInterval defaults to DefaultActivityRefreshInterval
	// when zero.
	ActivityRefreshInterval time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Resolve builds the Identity for one request. Missing or unknown
// credentials are not errors: the returned Identity simply reports
// HasToken/IsAuthenticated accordingly. A non-nil error means a
// collaborator fault (store unavailable) and is always an
// *AuthorizationError.
func (r *AuthorizationResolver) Resolve(ctx context.Context, req *http.Request) (domain.Identity, error) {
	ident := parseAuthorizationHeader(req)

	if ident.Token == "" {
		ident.Token = fallbackToken(req)
	}
	ident.HasToken = ident.Token != ""
	if !ident.HasToken {
		return ident, nil
	}

	rec, err := r.Store.Tokens().GetByToken(ctx, ident.Token)
	if errors.Is(err, store.ErrNotFound) {
		// Token was presented but is not ours. HasToken stays true so
		// endpoint policy can tell "no credentials" from "bad credentials".
		return ident, nil
	}
	if err != nil {
		return domain.Identity{}, &AuthorizationError{Op: "token lookup", Cause: err}
	}

	update := false

	// Backfill identity attributes the client did not report.
	if ident.Device == "" {
		ident.Device = rec.DeviceName
	}
	if ident.DeviceID == "" {
		ident.DeviceID = rec.DeviceID
	}
	if ident.Client == "" {
		ident.Client = rec.AppName
	}
	if ident.Version == "" {
		ident.Version = rec.AppVersion
	}

	if rec.IsAPIKey() {
		ident.IsAPIKey = true
		ident.IsAuthenticated = true
	} else {
		user, err := r.Store.Users().GetByID(ctx, rec.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Orphaned token: the bound user is gone. Treat as unknown.
			return ident, nil
		case err != nil:
			return domain.Identity{}, &AuthorizationError{Op: "user lookup", Cause: err}
		}
		ident.User = &user
		ident.IsAuthenticated = true

		if rec.UserName != user.Username {
			rec.UserName = user.Username
			update = true
		}
	}

	// Propagate a device rename, unless the token belongs to a chromecast
	// client: those report a transient receiver name that must not clobber
	// the user-assigned one.
	if ident.Device != "" && ident.Device != rec.DeviceName {
		if !strings.Contains(strings.ToLower(rec.AppName), "chromecast") {
			rec.DeviceName = ident.Device
			update = true
		}
	}
	if ident.DeviceID != "" && ident.DeviceID != rec.DeviceID {
		rec.DeviceID = ident.DeviceID
		update = true
	}
	if ident.Version != "" && ident.Version != rec.AppVersion {
		rec.AppVersion = ident.Version
		update = true
	}

	now := r.now()
	if now.Sub(rec.DateLastActivity) > r.refreshInterval() {
		rec.DateLastActivity = now
		update = true
	}

	if update {
		if err := r.Store.Tokens().Update(ctx, rec); err != nil {
			return domain.Identity{}, &AuthorizationError{Op: "token write-back", Cause: err}
		}
	}

	return ident, nil
}

func (r *AuthorizationResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *AuthorizationResolver) refreshInterval() time.Duration {
	if r.ActivityRefreshInterval > 0 {
		return r.ActivityRefreshInterval
	}
	return DefaultActivityRefreshInterval
}

// parseAuthorizationHeader reads the structured scheme from Authorization,
// falling back to X-Emby-Authorization. Only the MediaBrowser and Emby
// schemes are recognized; anything else yields an empty identity.
func parseAuthorizationHeader(req *http.Request) domain.Identity {
	raw := req.Header.Get("Authorization")
	if raw == "" {
		raw = req.Header.Get("X-Emby-Authorization")
	}
	if raw == "" {
		return domain.Identity{}
	}

	scheme, params, found := strings.Cut(strings.TrimSpace(raw), " ")
	if !found {
		return domain.Identity{}
	}
	if !strings.EqualFold(scheme, "MediaBrowser") && !strings.EqualFold(scheme, "Emby") {
		return domain.Identity{}
	}

	var ident domain.Identity
	for key, value := range parseKeyValues(params) {
		switch key {
		case "DeviceId":
			ident.DeviceID = value
		case "Device":
			ident.Device = value
		case "Client":
			ident.Client = value
		case "Version":
			ident.Version = value
		case "Token":
			ident.Token = value
		}
	}
	return ident
}

// parseKeyValues splits `Key="value", Key2="v2"` pairs, honoring commas
// inside quoted values. Values are HTML-escaped before use so header-borne
// strings are safe to echo into markup downstream.
func parseKeyValues(s string) map[string]string {
	out := make(map[string]string)

	var (
		field    strings.Builder
		inQuotes bool
	)
	flush := func() {
		pair := strings.TrimSpace(field.String())
		field.Reset()
		if pair == "" {
			return
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			return
		}
		out[key] = html.EscapeString(value)
	}

	for _, c := range s {
		switch {
		case c == '"':
			inQuotes = !inQuotes
			field.WriteRune(c)
		case c == ',' && !inQuotes:
			flush()
		default:
			field.WriteRune(c)
		}
	}
	flush()

	return out
}

// fallbackToken checks the legacy token locations, in precedence order.
func fallbackToken(req *http.Request) string {
	if t := req.Header.Get("X-Emby-Token"); t != "" {
		return t
	}
	if t := req.Header.Get("X-MediaBrowser-Token"); t != "" {
		return t
	}
	query := req.URL.Query()
	if t := query.Get("ApiKey"); t != "" {
		return t
	}
	return query.Get("api_key")
}
