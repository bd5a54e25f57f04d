package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"escrowline/internal/domain"
)

func TestSubjectUsesPrefix(t *testing.T) {
	p := NewNATSPublisher(nil, "", zerolog.Nop())
	assert.Equal(t, "escrowline.notifications.milestone_funded", p.Subject("milestone_funded"))

	p = NewNATSPublisher(nil, "market.events", zerolog.Nop())
	assert.Equal(t, "market.events.dispute_opened", p.Subject("dispute_opened"))
}

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	p := NewNATSPublisher(nil, "x", zerolog.Nop())
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), domain.Notification{ID: "n1", Type: "t"})
		p.Close()
	})
	var nop Publisher = Nop{}
	assert.NotPanics(t, func() { nop.Publish(context.Background(), domain.Notification{}) })
}
