package models

import "time"

// ClientSession is the server-side state of one browser: the backend
// token once signed in, plus the theme preference which outlives logout.
type ClientSession struct {
	ID            string    `json:"id"`
	Token         string    `json:"token,omitempty"`
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"user_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	Theme         string    `json:"theme,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

func (s *ClientSession) SignIn(token, userID, username string) {
	s.Token = token
	s.UserID = userID
	s.Username = username
	s.Authenticated = true
}

func (s *ClientSession) SignOut() {
	s.Token = ""
	s.UserID = ""
	s.Username = ""
	s.Authenticated = false
}
