package vendorsync

// RecordError attributes a failure to one record of a batch
type RecordError struct {
	Index       int    `json:"index"`
	BusinessKey string `json:"business_key,omitempty"`
	Error       string `json:"error"`
}

// BatchReport is the partial-failure report of one domain handler run.
// Processed always equals Succeeded + Failed. Flagged counts the succeeded
// records parked for manual review. Filtered counts records dropped by the
// vendor record filter before processing.
type BatchReport struct {
	Domain    SyncType      `json:"domain"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Flagged   int           `json:"flagged"`
	Filtered  int           `json:"filtered"`
	Errors    []RecordError `json:"errors,omitempty"`
}

// NewBatchReport creates an empty report for a domain
func NewBatchReport(domain SyncType) *BatchReport {
	return &BatchReport{Domain: domain}
}

// RecordSuccess counts a persisted record
func (r *BatchReport) RecordSuccess(flagged bool) {
	r.Processed++
	r.Succeeded++
	if flagged {
		r.Flagged++
	}
}

// RecordFailure counts a rejected record and keeps its error
func (r *BatchReport) RecordFailure(index int, businessKey string, err error) {
	r.Processed++
	r.Failed++
	r.Errors = append(r.Errors, RecordError{Index: index, BusinessKey: businessKey, Error: err.Error()})
}

// RecordFiltered counts a record skipped by the vendor's record filter
func (r *BatchReport) RecordFiltered() {
	r.Filtered++
}
