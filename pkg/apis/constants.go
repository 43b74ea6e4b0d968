package apis

const (
	// HTTP Response Fields
	CacheControl = "Cache-Control"
	NoCache      = "no-cache"

	// Self-defined Fields
	State = "state"
)
