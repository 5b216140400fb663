package storage

// Keys builds the logical keys of the store under a common prefix.
type Keys struct {
	Prefix string
}

// DefaultKeys uses the "tipytap:" namespace.
var DefaultKeys = Keys{Prefix: "tipytap:"}

func (k Keys) key(kind, id string) string {
	return k.Prefix + kind + ":" + id
}

// User is the cached user profile.
func (k Keys) User(userID string) string { return k.key("user", userID) }

// Token holds the id of the user's live session.
func (k Keys) Token(userID string) string { return k.key("token", userID) }

// PIN holds the bcrypt hash of the user's PIN.
func (k Keys) PIN(userID string) string { return k.key("pin", userID) }

// PINEnabled flags that the user opted into PIN re-entry.
func (k Keys) PINEnabled(userID string) string { return k.key("pin_enabled", userID) }

// Wallet holds the wallet record.
func (k Keys) Wallet(userID string) string { return k.key("wallet", userID) }

// Transactions holds the transaction list, most recent first.
func (k Keys) Transactions(userID string) string { return k.key("transactions", userID) }
