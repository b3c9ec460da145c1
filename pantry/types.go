package pantry

// Basket is the JSON body pushed to a basket endpoint.
type Basket struct {
	Filename     string `json:"filename"`
	Data         string `json:"data"`
	LastModified string `json:"last_modified"`
}

// Outcome classifies the result of a push.
type Outcome int

const (
	// OtherFailure covers transport errors and any non-2xx, non-5xx status.
	OtherFailure Outcome = iota
	// Success is any 2xx response.
	Success
	// ServerFailure is any 5xx response.
	ServerFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ServerFailure:
		return "server_failure"
	default:
		return "other_failure"
	}
}

// classify maps an HTTP status code to an Outcome.
func classify(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code >= 500 && code < 600:
		return ServerFailure
	default:
		return OtherFailure
	}
}
