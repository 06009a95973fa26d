package stores

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/trainmsg"
	"time"
)

// MovementSnapshot is a persisted sample from the movement stream.
type MovementSnapshot struct {
	// ID identifies the snapshot.
	ID int64
	// Train is the id of the train the snapshot belongs to.
	Train uuid.UUID
	// Direction in which the train was moving.
	Direction string
	// SpeedCMPS is the speed in cm/s at the time of the snapshot.
	SpeedCMPS float64
	// PWM is the motor power level.
	PWM uint8
	// SpeedControl describes whether speed control was turned on.
	SpeedControl bool
	// DesiredSpeedCMPS is the target speed for speed control.
	DesiredSpeedCMPS float64
	// PauseTimeMS is the pause time in ms.
	PauseTimeMS uint16
	// NextSplitDecision is the upcoming split decision.
	NextSplitDecision string
	// LifetimeOdometerMeters is the absolute odometer value in meters.
	LifetimeOdometerMeters float64
	// ReceivedAt is when the frame was handled.
	ReceivedAt time.Time
}

// ColorEvent is a persisted color-sensor reading.
type ColorEvent struct {
	// ID identifies the event.
	ID int64
	// Train is the id of the train the event belongs to.
	Train uuid.UUID
	// Sensor is the color sensor that changed.
	Sensor string
	// Color is the color accepted by the train.
	Color string
	// RawReading is the raw sensor reading that preceded the color decision.
	RawReading uint32
	// DeviceTimestampMS is the train's internal clock at emission time.
	DeviceTimestampMS uint32
	// ReceivedAt is when the frame was handled.
	ReceivedAt time.Time
}

// LogMovement persists the given movement message for the train.
func (m *Mall) LogMovement(trainID uuid.UUID, movement trainmsg.Movement) error {
	q, _, err := m.dialect.Insert(goqu.T("movement_snapshots")).Rows(goqu.Record{
		"train":                    trainID.String(),
		"direction":                movement.Direction.String(),
		"speed_cmps":               movement.SpeedCMPS,
		"pwm":                      movement.PWM,
		"speed_control":            movement.SpeedControl,
		"desired_speed_cmps":       movement.DesiredSpeedCMPS,
		"pause_time_ms":            movement.PauseTimeMS,
		"next_split_decision":      movement.NextSplitDecision.String(),
		"lifetime_odometer_meters": movement.LifetimeOdometerMeters,
		"received_at":              movement.ReceivedAt(),
	}).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	_, err = m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	return nil
}

// LogColorEvent persists the given accepted color reading for the train.
func (m *Mall) LogColorEvent(trainID uuid.UUID, colorChanged trainmsg.SensorColorChanged) error {
	q, _, err := m.dialect.Insert(goqu.T("color_events")).Rows(goqu.Record{
		"train":               trainID.String(),
		"sensor":              colorChanged.Sensor().String(),
		"color":               colorChanged.ColorValue().String(),
		"raw_reading":         colorChanged.RawSensorReading(),
		"device_timestamp_ms": colorChanged.DeviceTimestampMS(),
		"received_at":         colorChanged.ReceivedAt(),
	}).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	_, err = m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	return nil
}

// MovementHistory retrieves the most recent movement snapshots for the train,
// newest first.
func (m *Mall) MovementHistory(trainID uuid.UUID, limit uint) ([]MovementSnapshot, error) {
	q, _, err := m.dialect.From(goqu.T("movement_snapshots")).
		Select(goqu.C("id"), goqu.C("train"), goqu.C("direction"), goqu.C("speed_cmps"),
			goqu.C("pwm"), goqu.C("speed_control"), goqu.C("desired_speed_cmps"),
			goqu.C("pause_time_ms"), goqu.C("next_split_decision"),
			goqu.C("lifetime_odometer_meters"), goqu.C("received_at")).
		Where(goqu.C("train").Eq(trainID)).
		Order(goqu.C("received_at").Desc()).
		Limit(limit).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	defer closeRows(rows)
	snapshots := make([]MovementSnapshot, 0)
	for rows.Next() {
		var snapshot MovementSnapshot
		err = rows.Scan(&snapshot.ID, &snapshot.Train, &snapshot.Direction, &snapshot.SpeedCMPS,
			&snapshot.PWM, &snapshot.SpeedControl, &snapshot.DesiredSpeedCMPS,
			&snapshot.PauseTimeMS, &snapshot.NextSplitDecision,
			&snapshot.LifetimeOdometerMeters, &snapshot.ReceivedAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// ColorEventHistory retrieves the most recent color events for the train,
// newest first.
func (m *Mall) ColorEventHistory(trainID uuid.UUID, limit uint) ([]ColorEvent, error) {
	q, _, err := m.dialect.From(goqu.T("color_events")).
		Select(goqu.C("id"), goqu.C("train"), goqu.C("sensor"), goqu.C("color"),
			goqu.C("raw_reading"), goqu.C("device_timestamp_ms"), goqu.C("received_at")).
		Where(goqu.C("train").Eq(trainID)).
		Order(goqu.C("received_at").Desc()).
		Limit(limit).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"train": trainID})
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, errors.Details{"train": trainID})
	}
	defer closeRows(rows)
	colorEvents := make([]ColorEvent, 0)
	for rows.Next() {
		var colorEvent ColorEvent
		err = rows.Scan(&colorEvent.ID, &colorEvent.Train, &colorEvent.Sensor, &colorEvent.Color,
			&colorEvent.RawReading, &colorEvent.DeviceTimestampMS, &colorEvent.ReceivedAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		colorEvents = append(colorEvents, colorEvent)
	}
	return colorEvents, nil
}
