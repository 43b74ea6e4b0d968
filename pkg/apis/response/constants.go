package response

type ErrCode int

const (
	_                          ErrCode = 10000 + iota
	ErrCodeResourceNotFound            // 10001
	ErrCodeResourceUnavailable         // 10002
)

// New codes go at the end, with the message appended to response.errors.
