package domain

// Identity is the resolved authentication result for a single request. It is
// built once by the authorization resolver and never mutated afterwards;
// handlers read it from the request context.
type Identity struct {
	Token    string
	Device   string
	DeviceID string
	Client   string
	Version  string

	// HasToken reports that the request carried a token at all, whether or
	// not it resolved to a known record. Endpoint policy uses the
	// distinction between "no token" and "bad token".
	HasToken        bool
	IsAuthenticated bool

	// IsAPIKey is set when the token resolved to a record without a bound
	// user (machine credentials).
	IsAPIKey bool

	// User is nil for anonymous requests and API keys.
	User *User
}

// IsAdministrator reports whether the identity is an authenticated admin
// user. API keys count as administrative: they represent the server operator.
func (i Identity) IsAdministrator() bool {
	if i.IsAPIKey {
		return i.IsAuthenticated
	}
	return i.User != nil && i.User.IsAdministrator
}
