// Package pubsub wraps the Pub/Sub v2 client with the storefront topic and
// subscriptions resolved against the configured project.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

type Client struct {
	raw     *pubsub.Client
	project string
	topic   string
	subs    []string
}

// NewClient connects and fails if the event topic or any configured
// subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("pubsub: gcp project id is required")
	}
	raw, err := pubsub.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{
		raw:     raw,
		project: project,
		topic:   strings.TrimSpace(cfg.OrdersTopic),
		subs:    configuredSubscriptions(cfg),
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":         c.topic,
			"subscriptions": strings.Join(c.subs, ","),
		}), "pubsub connected")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func configuredSubscriptions(cfg config.PubSubConfig) []string {
	var out []string
	for _, name := range []string{cfg.OrdersSubscription, cfg.InvoicesSubscription, cfg.AnalyticsSubscription} {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Ping checks that the topic and every configured subscription exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("pubsub: client not initialized")
	}
	if c.topic == "" && len(c.subs) == 0 {
		return errors.New("pubsub: no topic or subscription configured")
	}
	if c.topic != "" {
		_, err := c.raw.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: qualify(c.project, kindTopic, c.topic),
		})
		if err := lookupErr(kindTopic, c.topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subs {
		_, err := c.raw.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: qualify(c.project, kindSubscription, sub),
		})
		if err := lookupErr(kindSubscription, sub, err); err != nil {
			return err
		}
	}
	return nil
}

func lookupErr(kind resourceKind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", strings.TrimSuffix(string(kind), "s"), name)
	default:
		return fmt.Errorf("pubsub: look up %q: %w", name, err)
	}
}

// Subscriber returns a handle for a subscription id or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.raw == nil {
		return nil
	}
	full := qualify(c.project, kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.raw.Subscriber(full)
}

// Publisher returns a handle for a topic id or full resource name. Callers
// own it and must Stop it.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.raw == nil {
		return nil
	}
	full := qualify(c.project, kindTopic, topic)
	if full == "" {
		return nil
	}
	return c.raw.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// qualify expands an id to projects/<project>/<kind>/<id>. Names that are
// already qualified pass through.
func qualify(project string, kind resourceKind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + string(kind) + "/" + name
}
