package error

// GenericError is implemented by all typed API errors so the recovery
// middleware can map them to an HTTP status and a stable error code.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
