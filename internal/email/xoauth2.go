package email

import "github.com/emersion/go-sasl"

// xoauth2Client implements the SASL XOAUTH2 mechanism used by IMAP and SMTP
// servers that accept OAuth2 access tokens instead of passwords.
type xoauth2Client struct {
	username string
	token    string
}

func newXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next is unused: XOAUTH2 has no challenge-response round trip on success.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, nil
}
