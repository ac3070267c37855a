package packs

import (
	"context"

	"github.com/rs/zerolog"
)

// Subjects published to the realtime transport. The event contract is
// subject + pack_id + operation-specific payload; delivery to connected
// clients is the transport's concern.
const (
	subjectPackCreated     = "packride.pack.created"
	subjectPackStarted     = "packride.pack.started"
	subjectPackEnded       = "packride.pack.ended"
	subjectPackCancelled   = "packride.pack.cancelled"
	subjectMemberJoined    = "packride.member.joined"
	subjectMemberLeft      = "packride.member.left"
	subjectLeaderChanged   = "packride.leader.changed"
	subjectMemberInvited   = "packride.member.invited"
	subjectLocationUpdated = "packride.location.updated"
)

// EventSubjects returns every subject this service publishes so the serve
// command can provision the JetStream stream.
func EventSubjects() []string {
	return []string{"packride.pack.>", "packride.member.>", "packride.leader.>", "packride.location.>"}
}

// EventPublisher is the realtime transport boundary. pkg/bus satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// eventEmitter publishes fire-and-forget: a slow or down transport must
// never fail a request that already committed.
type eventEmitter struct {
	pub EventPublisher
	log zerolog.Logger
}

func (e eventEmitter) emit(ctx context.Context, subject string, payload map[string]any) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, subject, payload); err != nil {
		e.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}
