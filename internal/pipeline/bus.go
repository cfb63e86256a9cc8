// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewBus builds the in-process message bus shared by the publisher and
// consumer. The bus is persistent: the track handler acknowledges a batch
// the moment Publish returns, so a batch published before the consumer's
// subscription attaches (startup ordering, consumer restart) must be held
// for the next subscriber rather than dropped.
func NewBus(bufferSize int) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(bufferSize),
		Persistent:          true,
	}, watermill.NopLogger{})
}
