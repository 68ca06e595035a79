package context

type Key string

const (
	Claims  Key = "claims"
	Params  Key = "params"
	Body    Key = "verified_body"
	Request Key = "request"
)
