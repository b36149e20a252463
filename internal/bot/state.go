package bot

import "github.com/Ilyushechek/secretar/internal/session"

// Dialog states owned by the transport layer. Booking pipeline states live
// in the booking package; everything else the dispatcher parks here.
const (
	stateFirstName    = session.State("onboarding_first_name")
	stateLastName     = session.State("onboarding_last_name")
	stateProviderCode = session.State("chat_provider_code")
	stateChatActive   = session.State("chat_active")

	stateCompletionPick     = session.State("completion_pick")
	stateCompletionDuration = session.State("completion_duration")
	stateCompletionWentWell = session.State("completion_went_well")
	stateCompletionNotes    = session.State("completion_notes")

	stateCancellationPick = session.State("cancellation_pick")

	stateRequestProviderPick = session.State("request_provider_pick")
	stateRequestMessage      = session.State("request_message")
	stateRequestInbox        = session.State("request_inbox")

	stateStatsPeriod = session.State("stats_period")
)

// Payload keys owned by these flows. Keys shared with the booking pipeline
// (role, client id) are defined in the session package.
const (
	payloadFirstName = "first_name"

	payloadRecordIDs = "record_ids"
	payloadRecordID  = "record_id"
	payloadDuration  = "duration_minutes"
	payloadWentWell  = "went_well"

	payloadProviderIDs       = "provider_ids"
	payloadTargetProvider    = "target_provider_id"
	payloadTargetName        = "target_provider_name"
	payloadRequestIDs        = "request_ids"
	payloadRequestID         = "request_id"
	payloadRequestClient     = "request_client_id"
	payloadRequestClientName = "request_client_name"
)
