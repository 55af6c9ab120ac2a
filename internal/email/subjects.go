package email

const (
	subjectJobAssignedFmt   = "New job: %s"
	subjectJobUnassignedFmt = "Job withdrawn: %s"
	subjectProfileApproved  = "Your profile change was approved"
	subjectProfileRejected  = "Your profile change was not approved"
)
