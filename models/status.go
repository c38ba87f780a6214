package models

// Next-step routing signals interpreted by the capture session.
const (
	NextStepDocumentFront = "DOCUMENT_FRONT"
	NextStepSelfieCapture = "SELFIE_CAPTURE"
	NextStepDone          = "DONE"
)

const (
	StatusCodeSuccess = 0
	StatusCodeFailure = 1
)

// Status carries the verdict of an analysis step together with the
// routing signal telling the session what to do next.
type Status struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	NextStep string `json:"next_step"`
}

func SuccessStatus(nextStep string) Status {
	return Status{Code: StatusCodeSuccess, Message: "success", NextStep: nextStep}
}

func FailureStatus(message string) Status {
	return Status{Code: StatusCodeFailure, Message: message, NextStep: NextStepDocumentFront}
}

func (s Status) OK() bool {
	return s.Code == StatusCodeSuccess
}
