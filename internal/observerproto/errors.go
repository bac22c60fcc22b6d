package observerproto

const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBadRate    = "E_BAD_RATE"
	ErrNoRun      = "E_NO_RUN"
	ErrTerminated = "E_TERMINATED"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest: {},
	ErrBadRate:    {},
	ErrNoRun:      {},
	ErrTerminated: {},
}

func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}
