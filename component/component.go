// Package component exposes the BigQuery destination to an event processing
// host, through the page, track, user and authenticate entry points.
package component

import (
	"strconv"

	"github.com/rounds/go-bqdestination/auth"
	"github.com/rounds/go-bqdestination/event"
	"github.com/rounds/go-bqdestination/insert"
	"github.com/rounds/go-bqdestination/lib"
	"github.com/rounds/go-bqdestination/lib/errors"
)

// SettingServiceJSON is the setting holding the service account JSON key.
const SettingServiceJSON = "service_json"

// A Guest is a data collection destination, called by the host once per event.
type Guest interface {
	Page(ev event.Event, settings map[string]string) (*lib.Request, error)
	Track(ev event.Event, settings map[string]string) (*lib.Request, error)
	User(ev event.Event, settings map[string]string) (*lib.Request, error)

	// Authenticate returns the request fetching the access token later passed
	// to the other entry points, or nil if the destination needs none.
	Authenticate(settings map[string]string) (*auth.TokenRequest, error)
}

// Component is the BigQuery Guest.
// All event entry points insert the event as is.
type Component struct {
	mapper  *insert.Mapper
	builder *auth.Builder
}

var _ Guest = (*Component)(nil)

// New returns a new Component.
func New(mapper *insert.Mapper, builder *auth.Builder) *Component {
	return &Component{mapper: mapper, builder: builder}
}

func (c *Component) Page(ev event.Event, settings map[string]string) (*lib.Request, error) {
	return c.event(ev, settings)
}

func (c *Component) Track(ev event.Event, settings map[string]string) (*lib.Request, error) {
	return c.event(ev, settings)
}

func (c *Component) User(ev event.Event, settings map[string]string) (*lib.Request, error) {
	return c.event(ev, settings)
}

// Authenticate always returns a token request: BigQuery requires one.
func (c *Component) Authenticate(settings map[string]string) (*auth.TokenRequest, error) {
	serviceJSON, ok := settings[SettingServiceJSON]
	if !ok || serviceJSON == "" {
		return nil, errors.NewMissingSettingError(SettingServiceJSON)
	}

	return c.builder.BuildTokenRequest([]byte(serviceJSON))
}

func (c *Component) event(ev event.Event, settings map[string]string) (*lib.Request, error) {
	dst, err := insert.NewDestination(settings)
	if err != nil {
		return nil, err
	}

	return c.mapper.BuildInsertRequest(ev, dst)
}

// Dispatch calls the entry point of g matching the event's type.
func Dispatch(g Guest, ev event.Event, settings map[string]string) (*lib.Request, error) {
	switch ev.Type {
	case event.Page:
		return g.Page(ev, settings)
	case event.Track:
		return g.Track(ev, settings)
	case event.User:
		return g.User(ev, settings)
	default:
		return nil, errors.NewUnknownVariantError("event_type", strconv.Itoa(int(ev.Type)))
	}
}
