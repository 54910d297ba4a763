package insert

import (
	"fmt"

	"github.com/rounds/go-bqdestination/lib/errors"
)

// Setting names of a Destination, in validation order.
const (
	SettingAccessToken = "access_token"
	SettingDatasetID   = "dataset_id"
	SettingProjectID   = "project_id"
	SettingTableID     = "table_id"
)

// A Destination is a BigQuery table, and the access token used to insert
// rows into it.
type Destination struct {
	AccessToken string
	ProjectID   string
	DatasetID   string
	TableID     string
}

// NewDestination returns a Destination from a flat settings map,
// and validates it.
func NewDestination(settings map[string]string) (Destination, error) {
	d := Destination{
		AccessToken: settings[SettingAccessToken],
		ProjectID:   settings[SettingProjectID],
		DatasetID:   settings[SettingDatasetID],
		TableID:     settings[SettingTableID],
	}

	if err := d.Validate(); err != nil {
		return Destination{}, err
	}

	return d, nil
}

// Validate returns a MissingSettingError naming the first empty field.
//
// NOTE fields are checked in a fixed order (access_token, dataset_id,
// project_id, table_id), so the same settings always fail the same way.
func (d Destination) Validate() error {
	switch {
	case d.AccessToken == "":
		return errors.NewMissingSettingError(SettingAccessToken)
	case d.DatasetID == "":
		return errors.NewMissingSettingError(SettingDatasetID)
	case d.ProjectID == "":
		return errors.NewMissingSettingError(SettingProjectID)
	case d.TableID == "":
		return errors.NewMissingSettingError(SettingTableID)
	}
	return nil
}

// URL returns the destination table's insertAll URL.
//
// NOTE identifiers are substituted as is, without escaping. BigQuery
// project, dataset and table IDs are URL safe.
func (d Destination) URL() string {
	return fmt.Sprintf(
		"https://bigquery.googleapis.com/bigquery/v2/projects/%s/datasets/%s/tables/%s/insertAll",
		d.ProjectID, d.DatasetID, d.TableID)
}
