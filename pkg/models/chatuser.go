package models

// ChatUser is the roster record returned by the chat adapter. ID is the
// canonical key in the chat namespace; Name is the human-routable alias
// that alerts address (the ldap column in the datastore).
type ChatUser struct {
	ID        string
	Name      string
	FirstName string
}

// DisplayName returns the friendliest name available for greeting.
func (u ChatUser) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Name
}
