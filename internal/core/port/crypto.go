package port

// PasswordEncoder hashes raw passwords and checks raw input against stored hashes.
type PasswordEncoder interface {
	Encode(raw string) (string, error)
	Matches(raw string, encoded string) (bool, error)
}
