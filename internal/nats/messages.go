package nats

// JobDispatchSubject carries pipeline dispatches from the API to workers.
const JobDispatchSubject = "docmill.jobs.dispatch"

// DispatchMessage tells a worker to run the pipeline for a created job.
// The raw document bytes ride along base64-encoded, the same way the
// submission payload does on the in-process path.
type DispatchMessage struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	Filename string `json:"filename"`
	Payload  []byte `json:"payload"`
}
