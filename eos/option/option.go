package option

import (
	"net/http"
	"time"

	"github.com/itchio/headway/state"
)

type EOSSettings struct {
	HTTPClient *http.Client
	Consumer   *state.Consumer

	// how long an idle HTTP reader is kept around for reuse
	ReaderStaleThreshold time.Duration
}

func DefaultSettings() *EOSSettings {
	return &EOSSettings{
		HTTPClient:           http.DefaultClient,
		ReaderStaleThreshold: 10 * time.Second,
	}
}

//////////////////////////////////////

type Option interface {
	Apply(*EOSSettings)
}

//////////////////////////////////////

type httpClientOption struct {
	client *http.Client
}

var _ Option = (*httpClientOption)(nil)

func (hco *httpClientOption) Apply(s *EOSSettings) {
	s.HTTPClient = hco.client
}

func WithHTTPClient(client *http.Client) Option {
	return &httpClientOption{client}
}

//////////////////////////////////////

type consumerOption struct {
	consumer *state.Consumer
}

var _ Option = (*consumerOption)(nil)

func (co *consumerOption) Apply(s *EOSSettings) {
	s.Consumer = co.consumer
}

func WithConsumer(consumer *state.Consumer) Option {
	return &consumerOption{consumer}
}

//////////////////////////////////////

type staleThresholdOption struct {
	threshold time.Duration
}

var _ Option = (*staleThresholdOption)(nil)

func (sto *staleThresholdOption) Apply(s *EOSSettings) {
	s.ReaderStaleThreshold = sto.threshold
}

func WithReaderStaleThreshold(threshold time.Duration) Option {
	return &staleThresholdOption{threshold}
}
