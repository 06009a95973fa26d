package stream

import (
	"encoding/json"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/logging"
	"github.com/lefinal/trainhub/stores"
	"net/http"
	"strconv"
	"time"
)

// defaultHistoryLimit is the number of history entries returned when no limit
// query parameter is given.
const defaultHistoryLimit = 100

// Store are the database operations the read API needs.
type Store interface {
	GetTrains() ([]stores.Train, error)
	TrainByName(name string) (stores.Train, error)
	DeleteTrain(trainID uuid.UUID) error
	MovementHistory(trainID uuid.UUID, limit uint) ([]stores.MovementSnapshot, error)
	ColorEventHistory(trainID uuid.UUID, limit uint) ([]stores.ColorEvent, error)
}

// trainItem is the JSON shape for trains in the read API.
type trainItem struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	Mac           nulls.String `json:"mac"`
	TrainUuid     nulls.String `json:"train_uuid"`
	BleApiVersion nulls.String `json:"ble_api_version"`
	FwVersion     nulls.String `json:"fw_version"`
	LastSeen      time.Time    `json:"last_seen"`
}

// movementSnapshotItem is the JSON shape for movement snapshots in the read
// API.
type movementSnapshotItem struct {
	Direction              string    `json:"direction"`
	SpeedCMPS              float64   `json:"speed_cmps"`
	PWM                    uint8     `json:"pwm"`
	SpeedControl           bool      `json:"speed_control"`
	DesiredSpeedCMPS       float64   `json:"desired_speed_cmps"`
	PauseTimeMS            uint16    `json:"pause_time_ms"`
	NextSplitDecision      string    `json:"next_split_decision"`
	LifetimeOdometerMeters float64   `json:"lifetime_odometer_meters"`
	ReceivedAt             time.Time `json:"received_at"`
}

// colorEventItem is the JSON shape for color events in the read API.
type colorEventItem struct {
	Sensor            string    `json:"sensor"`
	Color             string    `json:"color"`
	RawReading        uint32    `json:"raw_reading"`
	DeviceTimestampMS uint32    `json:"device_timestamp_ms"`
	ReceivedAt        time.Time `json:"received_at"`
}

// handleTrains lists registered trains and deletes trains by name.
func handleTrains(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			trains, err := store.GetTrains()
			if err != nil {
				respondError(w, errors.Wrap(err, "get trains", nil))
				return
			}
			items := make([]trainItem, 0, len(trains))
			for _, train := range trains {
				items = append(items, trainItem{
					ID:            train.ID,
					Name:          train.Name,
					Mac:           train.Mac,
					TrainUuid:     train.TrainUuid,
					BleApiVersion: train.BleApiVersion,
					FwVersion:     train.FwVersion,
					LastSeen:      train.LastSeen,
				})
			}
			respondJSON(w, items)
		case http.MethodDelete:
			train, ok := trainFromQuery(w, r, store)
			if !ok {
				return
			}
			err := store.DeleteTrain(train.ID)
			if err != nil {
				respondError(w, errors.Wrap(err, "delete train", nil))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// handleMovementHistory serves the most recent movement snapshots of a train.
func handleMovementHistory(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		train, ok := trainFromQuery(w, r, store)
		if !ok {
			return
		}
		limit, ok := limitFromQuery(w, r)
		if !ok {
			return
		}
		snapshots, err := store.MovementHistory(train.ID, limit)
		if err != nil {
			respondError(w, errors.Wrap(err, "movement history", nil))
			return
		}
		items := make([]movementSnapshotItem, 0, len(snapshots))
		for _, snapshot := range snapshots {
			items = append(items, movementSnapshotItem{
				Direction:              snapshot.Direction,
				SpeedCMPS:              snapshot.SpeedCMPS,
				PWM:                    snapshot.PWM,
				SpeedControl:           snapshot.SpeedControl,
				DesiredSpeedCMPS:       snapshot.DesiredSpeedCMPS,
				PauseTimeMS:            snapshot.PauseTimeMS,
				NextSplitDecision:      snapshot.NextSplitDecision,
				LifetimeOdometerMeters: snapshot.LifetimeOdometerMeters,
				ReceivedAt:             snapshot.ReceivedAt,
			})
		}
		respondJSON(w, items)
	}
}

// handleColorEventHistory serves the most recent color events of a train.
func handleColorEventHistory(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		train, ok := trainFromQuery(w, r, store)
		if !ok {
			return
		}
		limit, ok := limitFromQuery(w, r)
		if !ok {
			return
		}
		colorEvents, err := store.ColorEventHistory(train.ID, limit)
		if err != nil {
			respondError(w, errors.Wrap(err, "color event history", nil))
			return
		}
		items := make([]colorEventItem, 0, len(colorEvents))
		for _, colorEvent := range colorEvents {
			items = append(items, colorEventItem{
				Sensor:            colorEvent.Sensor,
				Color:             colorEvent.Color,
				RawReading:        colorEvent.RawReading,
				DeviceTimestampMS: colorEvent.DeviceTimestampMS,
				ReceivedAt:        colorEvent.ReceivedAt,
			})
		}
		respondJSON(w, items)
	}
}

// trainFromQuery resolves the train from the train query parameter. If
// resolving fails, the error response is already written and false returned.
func trainFromQuery(w http.ResponseWriter, r *http.Request, store Store) (stores.Train, bool) {
	trainName := r.URL.Query().Get("train")
	if trainName == "" {
		http.Error(w, "missing train query parameter", http.StatusBadRequest)
		return stores.Train{}, false
	}
	train, err := store.TrainByName(trainName)
	if err != nil {
		respondError(w, errors.Wrap(err, "train by name", nil))
		return stores.Train{}, false
	}
	return train, true
}

// limitFromQuery parses the optional limit query parameter. If parsing fails,
// the error response is already written and false returned.
func limitFromQuery(w http.ResponseWriter, r *http.Request) (uint, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.ParseUint(limitStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid limit query parameter", http.StatusBadRequest)
		return 0, false
	}
	return uint(limit), true
}

// respondJSON writes the given payload as JSON response.
func respondJSON(w http.ResponseWriter, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		respondError(w, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal response",
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// respondError writes the matching http status for the given error and logs
// internal ones.
func respondError(w http.ResponseWriter, err error) {
	e, _ := errors.Cast(err)
	if e.Code == errors.ErrNotFound {
		http.Error(w, e.Message, http.StatusNotFound)
		return
	}
	errors.Log(logging.StreamLogger, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
