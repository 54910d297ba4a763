// Package insert maps analytics events to BigQuery insertAll request
// descriptors.
//
// Each event is mapped to a single row, sent in its own request.
// No request is executed here.
package insert

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/dchest/uniuri"
	"github.com/google/uuid"
	bigquery "google.golang.org/api/bigquery/v2"

	"github.com/rounds/go-bqdestination/event"
	"github.com/rounds/go-bqdestination/lib"
	"github.com/rounds/go-bqdestination/lib/errors"
)

// Row column names.
const (
	ColumnUUID            = "uuid"
	ColumnEventType       = "event_type"
	ColumnTimestamp       = "timestamp"
	ColumnTimestampMillis = "timestamp_millis"
	ColumnTimestampMicros = "timestamp_micros"
	ColumnConsent         = "consent"
	ColumnContext         = "context"
	ColumnData            = "data"
)

// A Mapper builds insertAll requests from events.
//
// A Mapper holds no state between calls and is safe for concurrent use.
type Mapper struct {
	insertID bool
}

// New returns a new Mapper.
func New(options ...OptionFunc) (*Mapper, error) {
	m := Mapper{}

	// Override defaults with options if given.
	for _, option := range options {
		if err := option(&m); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// BuildInsertRequest returns an insertAll request, inserting ev as a single
// row to dst, using a Mapper with default options.
func BuildInsertRequest(ev event.Event, dst Destination) (*lib.Request, error) {
	return (&Mapper{}).BuildInsertRequest(ev, dst)
}

// BuildInsertRequest returns an insertAll request, inserting ev as a single
// row to dst.
func (m *Mapper) BuildInsertRequest(ev event.Event, dst Destination) (*lib.Request, error) {
	if err := dst.Validate(); err != nil {
		return nil, err
	}

	row, err := NewRow(ev)
	if err != nil {
		return nil, err
	}

	r := bigquery.TableDataInsertAllRequestRows{Json: row}
	if m.insertID {
		r.InsertId = insertID(ev.UUID)
	}

	body, err := json.Marshal(&bigquery.TableDataInsertAllRequest{
		Rows: []*bigquery.TableDataInsertAllRequestRows{&r},
	})
	if err != nil {
		return nil, errors.NewSerializationError("rows", err)
	}

	return &lib.Request{
		Method: http.MethodPost,
		URL:    dst.URL(),
		Headers: []lib.Header{
			{Name: "Authorization", Value: "Bearer " + dst.AccessToken},
			{Name: "Content-Type", Value: "application/json"},
		},
		Body:                 string(body),
		ForwardClientHeaders: false,
	}, nil
}

// NewRow returns the BigQuery row of ev.
//
// The context and data columns hold JSON text: their values are JSON strings,
// not nested records. Absent consent is a null column.
func NewRow(ev event.Event) (map[string]bigquery.JsonValue, error) {
	eventType, err := ev.Type.MarshalText()
	if err != nil {
		return nil, err
	}

	var consent bigquery.JsonValue
	if s, ok, err := ev.Consent.Value(); err != nil {
		return nil, err
	} else if ok {
		consent = s
	}

	context, err := jsonText(ColumnContext, ev.Context)
	if err != nil {
		return nil, err
	}

	data, err := jsonText(ColumnData, ev.Data)
	if err != nil {
		return nil, err
	}

	return map[string]bigquery.JsonValue{
		ColumnUUID:            ev.UUID.String(),
		ColumnEventType:       string(eventType),
		ColumnTimestamp:       ev.Timestamp,
		ColumnTimestampMillis: ev.TimestampMillis,
		ColumnTimestampMicros: ev.TimestampMicros,
		ColumnConsent:         consent,
		ColumnContext:         context,
		ColumnData:            data,
	}, nil
}

// jsonText returns raw as compact JSON text, or nil if raw is empty or null.
func jsonText(field string, raw json.RawMessage) (bigquery.JsonValue, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errors.NewSerializationError(field, err)
	}
	return buf.String(), nil
}

func insertID(id uuid.UUID) string {
	if id == uuid.Nil {
		return uniuri.NewLen(16)
	}
	return id.String()
}
