package domain

// SecureLink carries a room token and the wrapped session key in one URI.
type SecureLink struct {
	Token      string
	EncodedKey string
	URI        string
}

func (l SecureLink) String() string {
	return l.URI
}
