package realtime

import (
	"net/url"
	"strings"
)

type SubscriptionFactory struct {
	baseURL string
	sink    EventSink
	logger  Logger
	dial    DialFunc
	after   AfterFunc
}

type SubscriptionFactoryOptions struct {
	BaseURL string
	Sink    EventSink
	Logger  Logger
	Dial    DialFunc
	After   AfterFunc
}

func NewSubscriptionFactory(baseURL string, sink EventSink) *SubscriptionFactory {
	return NewSubscriptionFactoryWithOptions(SubscriptionFactoryOptions{
		BaseURL: baseURL,
		Sink:    sink,
	})
}

func NewSubscriptionFactoryWithOptions(opts SubscriptionFactoryOptions) *SubscriptionFactory {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	return &SubscriptionFactory{
		baseURL: baseURL,
		sink:    opts.Sink,
		logger:  opts.Logger,
		dial:    opts.Dial,
		after:   opts.After,
	}
}

func (f *SubscriptionFactory) ForWorkspace(workspaceID string) *Transport {
	scope := url.QueryEscape("workspace:" + workspaceID)
	return f.build(WebsocketBaseURL(f.baseURL) + "/events?scope=" + scope)
}

func (f *SubscriptionFactory) ForStudy(studyID string) *Transport {
	return f.build(WebsocketBaseURL(f.baseURL) + "/ws/presence?study_id=" + url.QueryEscape(studyID))
}

func (f *SubscriptionFactory) build(streamURL string) *Transport {
	return NewTransport(TransportOptions{
		URL:    streamURL,
		Sink:   f.sink,
		Logger: f.logger,
		Dial:   f.dial,
		After:  f.after,
	})
}

func WebsocketBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
