package service

import "errors"

var (
	ErrValidation         = errors.New("please fill in all fields")
	ErrAuthInFlight       = errors.New("a request is already in progress")
	ErrSubmissionInFlight = errors.New("a prediction is already in progress")
	ErrClassification     = errors.New("classification failed")
	ErrPersistence        = errors.New("saving the prediction failed")
	ErrNoImage            = errors.New("no image to submit")
)

// Messages shown to the user by the auth forms.
const (
	MsgFillAllFields      = "please fill in all fields"
	MsgInvalidCredentials = "invalid username or password"
	MsgRegisterFailed     = "registration failed"
	MsgNetwork            = "network or server error"
	MsgInFlight           = "a request is already in progress"
)
