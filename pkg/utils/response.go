package utils

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics with the given error so the recovery middleware can
// translate it into an HTTP response. Handlers use this instead of
// hand-rolling error responses on every return path.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
