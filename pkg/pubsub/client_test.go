package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
)

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{
		DomainSubscription:    " domain-sub ",
		AnalyticsSubscription: "\t",
	})
	assert.Equal(t, []string{"domain-sub"}, names)
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}

	assert.Equal(t, "projects/proj/topics/staff", c.resourceName("topics", "staff"))
	assert.Equal(t, "projects/other/topics/x", c.resourceName("topics", "projects/other/topics/x"))
	assert.Equal(t, "projects/proj/subscriptions/sub", c.resourceName("subscriptions", " sub "))
	assert.Empty(t, c.resourceName("subscriptions", "  "))
	assert.Empty(t, (&Client{}).resourceName("topics", "staff"))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("topic"))
	assert.Nil(t, c.DomainSubscription())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errClosed)
}
