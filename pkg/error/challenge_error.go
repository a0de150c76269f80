package error

import "net/http"

// ChallengeError covers every user-correctable verification failure:
// invalid or expired challenge, bad signature, no qualifying holdings.
// The message is already sanitized by the caller.
type ChallengeError string

func (err ChallengeError) Error() string {
	return string(err)
}

func (err ChallengeError) ErrCode() string {
	return "CHALLENGE_ERROR"
}

func (err ChallengeError) StatusCode() int {
	return http.StatusBadRequest
}
