package aflib

import "strconv"

// Status is a hub-side attribute API status code. The numeric values are
// part of the wire contract with hubby and must not be renumbered.
//
// Status implements error; the negative constants can be returned and
// matched directly with errors.Is.
type Status int

const (
	StatusSuccess      Status = 0
	StatusInvalidParam Status = -6 // bad input parameter
	StatusUnavailable  Status = -7 // hubby is not available right now

	// errors returned from reading the binary profile:
	StatusFileNotFound     Status = -21
	StatusProfileCorrupted Status = -22
	StatusProfileTooBig    Status = -23
	StatusProfileTooNew    Status = -24
)

func (s Status) Error() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidParam:
		return "invalid parameter"
	case StatusUnavailable:
		return "hubby unavailable"
	case StatusFileNotFound:
		return "profile file not found"
	case StatusProfileCorrupted:
		return "profile corrupted"
	case StatusProfileTooBig:
		return "profile too big"
	case StatusProfileTooNew:
		return "profile format too new"
	default:
		return "status " + strconv.Itoa(int(s))
	}
}

// Code returns the raw numeric status value.
func (s Status) Code() int { return int(s) }

// Ok reports whether the status indicates success.
func (s Status) Ok() bool { return s == StatusSuccess }
