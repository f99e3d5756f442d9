package models

// ModelRegistry lists the models handled by --auto-migrate in development.
var ModelRegistry = []interface{}{
	&WaitlistSubmission{},
}
