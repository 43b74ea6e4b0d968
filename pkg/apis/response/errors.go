package response

var errors = map[ErrCode]string{
	ErrCodeResourceNotFound:    "The resource %s was not found.",
	ErrCodeResourceUnavailable: "The resource %s is temporarily unavailable.",
}

func ErrResourceNotFound(resource string) *responseError {
	return generateError(ErrCodeResourceNotFound, resource)
}

func ErrResourceUnavailable(resource string, err error) *responseError {
	re := generateError(ErrCodeResourceUnavailable, resource)
	re.Err = err
	return re
}
