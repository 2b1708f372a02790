package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestQualify(t *testing.T) {
	cases := []struct {
		kind resourceKind
		in   string
		want string
	}{
		{kindTopic, "storefront-events", "projects/shop-prod/topics/storefront-events"},
		{kindTopic, "projects/other/topics/storefront-events", "projects/other/topics/storefront-events"},
		{kindSubscription, " invoices ", "projects/shop-prod/subscriptions/invoices"},
		{kindSubscription, "projects/other/topics/x", "projects/shop-prod/subscriptions/projects/other/topics/x"},
		{kindSubscription, "", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, qualify("shop-prod", tc.kind, tc.in), tc.in)
	}
	assert.Empty(t, qualify("", kindTopic, "storefront-events"))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("storefront-events"))
	assert.Nil(t, c.Subscriber("invoices"))
	assert.Error(t, c.Ping(t.Context()))
	assert.NoError(t, c.Close())
}

func TestConfiguredSubscriptionsSkipsBlank(t *testing.T) {
	names := configuredSubscriptions(config.PubSubConfig{
		OrdersSubscription:    "  ",
		InvoicesSubscription:  "invoices-sub",
		AnalyticsSubscription: "analytics-sub",
	})
	assert.Equal(t, []string{"invoices-sub", "analytics-sub"}, names)
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	assert.Empty(t, credentials(config.GCPConfig{ProjectID: "p"}))
	assert.Len(t, credentials(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}), 1)
	assert.Len(t, credentials(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
}
