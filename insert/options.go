// Here be option functions for constructing a new Mapper.

package insert

type OptionFunc func(*Mapper) error

// SetInsertID sets whether rows are sent with an insertId, used by BigQuery
// for best-effort de-duplication.
//
// The event UUID is used as the insertId. Events with a nil UUID get a random
// 16 character ID instead.
func SetInsertID(enabled bool) OptionFunc {
	return func(m *Mapper) error {
		m.insertID = enabled
		return nil
	}
}
