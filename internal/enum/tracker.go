package enum

type TrackerKey string

const (
	TrackerEmailSend            TrackerKey = "email_send"
	TrackerEmailOpen            TrackerKey = "email_open"
	TrackerLandingPageOpen      TrackerKey = "landing_page_open"
	TrackerLandingPagePost      TrackerKey = "landing_page_post"
	TrackerAttachmentExecuted   TrackerKey = "attachment_executed"
	TrackerAttachmentLPExecuted TrackerKey = "attachment_lp_executed"
)

func (k TrackerKey) String() string {
	return string(k)
}

var TrackerKeys = []TrackerKey{
	TrackerEmailSend,
	TrackerEmailOpen,
	TrackerLandingPageOpen,
	TrackerLandingPagePost,
	TrackerAttachmentExecuted,
	TrackerAttachmentLPExecuted,
}

// Tracker values
const (
	TrackerValuePending     = "pending"
	TrackerValueSuccess     = "success"
	TrackerValueFail        = "fail"
	TrackerValueNotOpened   = "not opened"
	TrackerValueOpened      = "opened"
	TrackerValueNotExecuted = "not executed"
	TrackerValueNo          = "no"
	TrackerValueYes         = "yes"
	TrackerValueDownloaded  = "downloaded"
)
