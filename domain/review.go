package domain

// AnonymousAuthor is shown for reviews posted without a name.
const AnonymousAuthor = "Anonymous"

type Review struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Message  string `db:"message" json:"message"`
}

// Author returns the display name of the review's author.
func (r Review) Author() string {
	if r.Username == "" {
		return AnonymousAuthor
	}
	return r.Username
}
