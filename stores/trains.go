package stores

import (
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/trainmsg"
	"time"
)

// Train holds all information regarding a registered train.
type Train struct {
	// ID is the assigned train id.
	ID uuid.UUID
	// Name is the human-readable name the train is addressed by on the broker.
	Name string
	// Mac is the BLE MAC address, once reported by the train.
	Mac nulls.String
	// TrainUuid is the vendor id, once reported by the train.
	TrainUuid nulls.String
	// BleApiVersion is the reported BLE API version.
	BleApiVersion nulls.String
	// FwVersion is the reported firmware version.
	FwVersion nulls.String
	// LastSeen is the last time a frame of the train was handled.
	LastSeen time.Time
}

// GetTrains retrieves all registered trains ordered by last seen.
func (m *Mall) GetTrains() ([]Train, error) {
	q, _, err := m.dialect.From(goqu.T("trains")).
		Select(goqu.C("id"), goqu.C("name"), goqu.C("mac"), goqu.C("train_uuid"),
			goqu.C("ble_api_version"), goqu.C("fw_version"), goqu.C("last_seen")).
		Order(goqu.C("last_seen").Desc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	defer closeRows(rows)
	trains := make([]Train, 0)
	for rows.Next() {
		var train Train
		err = rows.Scan(&train.ID, &train.Name, &train.Mac, &train.TrainUuid,
			&train.BleApiVersion, &train.FwVersion, &train.LastSeen)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		trains = append(trains, train)
	}
	return trains, nil
}

// TrainByName retrieves the train with the given name.
func (m *Mall) TrainByName(name string) (Train, error) {
	q, _, err := m.dialect.From(goqu.T("trains")).
		Select(goqu.C("id"), goqu.C("name"), goqu.C("mac"), goqu.C("train_uuid"),
			goqu.C("ble_api_version"), goqu.C("fw_version"), goqu.C("last_seen")).
		Where(goqu.C("name").Eq(name)).ToSQL()
	if err != nil {
		return Train{}, errors.NewQueryToSQLError(err, errors.Details{"name": name})
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return Train{}, errors.NewExecQueryError(err, q, errors.Details{"name": name})
	}
	defer closeRows(rows)
	if !rows.Next() {
		return Train{}, errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindUnknownTrain,
			Message: fmt.Sprintf("train %s not found", name),
			Details: errors.Details{"name": name},
		}
	}
	var train Train
	err = rows.Scan(&train.ID, &train.Name, &train.Mac, &train.TrainUuid,
		&train.BleApiVersion, &train.FwVersion, &train.LastSeen)
	if err != nil {
		return Train{}, errors.NewScanDBRowError(err, q)
	}
	return train, nil
}

// CreateTrain registers a train with the given name.
func (m *Mall) CreateTrain(name string) (Train, error) {
	createdTrain := Train{
		ID:       uuid.New(),
		Name:     name,
		LastSeen: time.Now(),
	}
	q, _, err := m.dialect.Insert(goqu.T("trains")).Rows(goqu.Record{
		"id":        createdTrain.ID.String(),
		"name":      createdTrain.Name,
		"last_seen": createdTrain.LastSeen,
	}).ToSQL()
	if err != nil {
		return Train{}, errors.NewQueryToSQLError(err, errors.Details{"name": name})
	}
	_, err = m.db.Exec(q)
	if err != nil {
		return Train{}, errors.NewExecQueryError(err, q, errors.Details{"name": name})
	}
	return createdTrain, nil
}

// RefreshLastSeenForTrain sets the last seen timestamp of the train to now.
func (m *Mall) RefreshLastSeenForTrain(trainID uuid.UUID) error {
	q, _, err := m.dialect.Update(goqu.T("trains")).
		Set(goqu.Record{
			"last_seen": time.Now(),
		}).
		Where(goqu.C("id").Eq(trainID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	result, err := m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	err = assureOneRowAffectedForNotFound(result, fmt.Sprintf("train %v not found", trainID), trainID, q)
	if err != nil {
		return errors.Wrap(err, "assure found", nil)
	}
	return nil
}

// SetTrainIdentity stores the identity the train reported via mac-address and
// train-uuid responses.
func (m *Mall) SetTrainIdentity(trainID uuid.UUID, mac, trainUuid nulls.String) error {
	errDetails := errors.Details{
		"train":     trainID,
		"mac":       mac,
		"trainUuid": trainUuid,
	}
	q, _, err := m.dialect.Update(goqu.T("trains")).
		Set(goqu.Record{
			"mac":        mac,
			"train_uuid": trainUuid,
		}).
		Where(goqu.C("id").Eq(trainID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errDetails)
	}
	result, err := m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errDetails)
	}
	err = assureOneRowAffectedForNotFound(result, fmt.Sprintf("train %v not found", trainID), trainID, q)
	if err != nil {
		return errors.Wrap(err, "assure found", nil)
	}
	return nil
}

// SetTrainVersions stores the versions from a version-detail response.
func (m *Mall) SetTrainVersions(trainID uuid.UUID, versionDetail trainmsg.VersionDetail) error {
	errDetails := errors.Details{"train": trainID}
	q, _, err := m.dialect.Update(goqu.T("trains")).
		Set(goqu.Record{
			"ble_api_version": versionDetail.BleApiVersion.String(),
			"fw_version":      versionDetail.FwVersion.String(),
		}).
		Where(goqu.C("id").Eq(trainID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errDetails)
	}
	result, err := m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errDetails)
	}
	err = assureOneRowAffectedForNotFound(result, fmt.Sprintf("train %v not found", trainID), trainID, q)
	if err != nil {
		return errors.Wrap(err, "assure found", nil)
	}
	return nil
}

// DeleteTrain deletes the train and all recorded telemetry.
func (m *Mall) DeleteTrain(trainID uuid.UUID) error {
	q, _, err := m.dialect.Delete(goqu.T("trains")).
		Where(goqu.C("id").Eq(trainID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	result, err := m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	err = assureOneRowAffectedForNotFound(result, fmt.Sprintf("train %v not found", trainID), trainID, q)
	if err != nil {
		return errors.Wrap(err, "assure found", nil)
	}
	return nil
}
