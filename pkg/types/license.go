package types

// Coin is an opaque unit of currency returned by cashing a treasure.
type Coin int64

// License grants DigAllowed digs. DigUsed never exceeds DigAllowed while the
// license is valid.
type License struct {
	ID         int64 `json:"id"`
	DigAllowed int   `json:"digAllowed"`
	DigUsed    int   `json:"digUsed"`
}

// Remaining returns the number of digs still available on the license.
func (l License) Remaining() int {
	if l.DigUsed >= l.DigAllowed {
		return 0
	}
	return l.DigAllowed - l.DigUsed
}

// Exhausted reports whether every allowed dig has been used.
func (l License) Exhausted() bool {
	return l.DigUsed >= l.DigAllowed
}
