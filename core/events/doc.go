// Package events defines the typed event contract emitted while guiding a
// walk.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - status.*
//   - user_input.*
//   - playback.*
//   - dialog.*
//   - session.*
//   - points.*
//
// status events
//
//   - StatusUpdated (status.updated): user-visible status line or toast.
//     Err is set when the status reports a failure.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): recognition started
//     listening.
//   - UserSpeechEnded (user_input.speech_ended): recognition stopped
//     listening, whatever the outcome.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim transcript snapshot.
//   - UserTranscriptFinal (user_input.transcript_final): final transcript
//     for one listening turn, recognized or typed.
//
// playback events
//
//   - UtteranceQueued (playback.utterance_queued): prompt appended to the
//     playback queue.
//   - UtteranceStarted (playback.utterance_started): prompt became the
//     current utterance.
//   - UtteranceSpoken (playback.utterance_spoken): prompt finished playing.
//   - UtteranceDiscarded (playback.utterance_discarded): prompt was flushed
//     before it finished.
//   - SpeechFallbackUsed (playback.fallback_used): remote synthesis failed
//     and the local voice spoke the prompt instead.
//
// dialog events
//
//   - DialogStateChanged (dialog.state_changed): destination dialog moved
//     between states.
//   - LocationAcquired (dialog.location_acquired): the dialog obtained the
//     user's starting position.
//   - DestinationResolved (dialog.destination_resolved): the user confirmed
//     a destination and it was found.
//   - RouteFound (dialog.route_found): a safe route to the destination was
//     planned.
//
// session events
//
//   - SessionStarted (session.started): walking session began.
//   - CheckInAccepted (session.checkin_accepted): the user was inside the
//     checkpoint geofence.
//   - CheckInRejected (session.checkin_rejected): the check-in was refused.
//   - SessionCompleted (session.completed): end checkpoint accepted.
//   - SessionCancelled (session.cancelled): session was abandoned.
//
// points events
//
//   - PointsClaimAccepted (points.claim_accepted): the reward was granted.
//   - PointsClaimRejected (points.claim_rejected): the reward was refused,
//     including duplicate claims. Completion of the walk stands regardless.
package events
