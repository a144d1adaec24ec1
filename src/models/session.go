package models

// Session represents one authenticated principal on the client side: the
// bearer token plus the identity the server reported for it.
//
// Token and User are set and cleared together. A Session with only one of the
// two is a transient state that must never be observable through the session
// store.
type Session struct {
	Token string
	User  *User
}

// Authenticated reports whether both token and identity are present.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}
