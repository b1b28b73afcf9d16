package api

const SuccessCode = 1

// Envelope is embedded in every backend response.
type Envelope struct {
	Code *int   `json:"code,omitempty"`
	Msg  string `json:"msg"`
}

func (e Envelope) Succeeded() bool {
	return e.Code != nil && *e.Code == SuccessCode
}

func Success(msg string) Envelope {
	c := SuccessCode
	return Envelope{Code: &c, Msg: msg}
}

func Failure(msg string) Envelope {
	c := 0
	return Envelope{Code: &c, Msg: msg}
}
