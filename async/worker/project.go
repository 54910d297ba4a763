// Here be helper BigQuery data types.

package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	bigquery "google.golang.org/api/bigquery/v2"

	"github.com/rounds/go-bqdestination/lib"
)

// A TableKey identifies a destination table, and the credentials used to
// insert rows into it.
type TableKey struct {
	URL           string
	Authorization string
}

type Table []*bigquery.TableDataInsertAllRequestRows
type Tables map[TableKey]Table

// Add appends the rows of an insertAll request to its table,
// creating the table if non-existent.
//
// NOTE numbers are decoded as json.Number, so they are re-sent exactly as
// they were received.
func (ts Tables) Add(req *lib.Request) error {
	d := json.NewDecoder(bytes.NewBufferString(req.Body))
	d.UseNumber()

	var body bigquery.TableDataInsertAllRequest
	if err := d.Decode(&body); err != nil {
		return fmt.Errorf("%s: failed decoding insert request: %w", req.URL, err)
	}

	key := TableKey{URL: req.URL, Authorization: req.Header("Authorization")}
	ts[key] = append(ts[key], body.Rows...)
	return nil
}
