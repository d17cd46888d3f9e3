package models

import "strings"

// CommandResult is the {status, message} envelope returned by every
// command endpoint of the QC server.
type CommandResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports a successful command. The server mixes "ok" and "OK".
func (r *CommandResult) OK() bool {
	return strings.EqualFold(r.Status, "ok")
}

// BatchSubmitResult is returned by /delivery/submit_batch/.
type BatchSubmitResult struct {
	CommandResult
	Failed []string `json:"failed"`
}

// CreateJobRequest triggers QC for one or more deliveries via /create_job.
type CreateJobRequest struct {
	DeliveryIDs  []DeliveryID `json:"delivery_ids"`
	ProductIdent string       `json:"product_ident"`
	SkipSteps    []string     `json:"skip_steps,omitempty"`
}

// CreateJobResult is the response of /create_job.
type CreateJobResult struct {
	CommandResult
	NumCreated int `json:"num_created"`
}

// RunRequest triggers a single check run via /run_wps_execute.
type RunRequest struct {
	ProductIdent        string   `json:"product_ident"`
	Filepath            string   `json:"filepath"`
	OptionalCheckIdents []string `json:"optional_check_idents,omitempty"`
}
