// Package recording persists decoded train messages.
package recording

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/trainhub/dispatch"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/stores"
	"github.com/lefinal/trainhub/trainmsg"
	"go.uber.org/zap"
)

// Mall are the database operations the Recorder needs.
type Mall interface {
	TrainByName(name string) (stores.Train, error)
	CreateTrain(name string) (stores.Train, error)
	RefreshLastSeenForTrain(trainID uuid.UUID) error
	SetTrainIdentity(trainID uuid.UUID, mac, trainUuid nulls.String) error
	SetTrainVersions(trainID uuid.UUID, versionDetail trainmsg.VersionDetail) error
	LogMovement(trainID uuid.UUID, movement trainmsg.Movement) error
	LogColorEvent(trainID uuid.UUID, colorChanged trainmsg.SensorColorChanged) error
}

// Recorder subscribes decoded messages for a train and persists them. Movement
// samples and accepted color readings are logged, identity and version
// responses update the train registry.
type Recorder struct {
	logger        *zap.Logger
	mall          Mall
	subscriptions *dispatch.SubscriptionManager
	// trainName is the name the train is registered under.
	trainName string
}

// NewRecorder creates a new Recorder that persists messages from the given
// dispatch.SubscriptionManager via the given stores.Mall.
func NewRecorder(logger *zap.Logger, mall Mall, subscriptions *dispatch.SubscriptionManager,
	trainName string) *Recorder {
	return &Recorder{
		logger:        logger,
		mall:          mall,
		subscriptions: subscriptions,
		trainName:     trainName,
	}
}

// Run subscribes and persists until the given context is done. The train is
// registered on first run.
func (r *Recorder) Run(ctx context.Context) error {
	train, err := r.assureTrain()
	if err != nil {
		return errors.Wrap(err, "assure train", nil)
	}
	movementNewsletter := dispatch.SubscribeTyped[trainmsg.Movement](r.subscriptions, trainmsg.KindMovement)
	defer dispatch.UnsubscribeOrLogError(movementNewsletter.Newsletter)
	frontColorNewsletter := dispatch.SubscribeTyped[trainmsg.FrontColorChanged](r.subscriptions, trainmsg.KindFrontColorChanged)
	defer dispatch.UnsubscribeOrLogError(frontColorNewsletter.Newsletter)
	backColorNewsletter := dispatch.SubscribeTyped[trainmsg.BackColorChanged](r.subscriptions, trainmsg.KindBackColorChanged)
	defer dispatch.UnsubscribeOrLogError(backColorNewsletter.Newsletter)
	macNewsletter := dispatch.SubscribeTyped[trainmsg.MacAddress](r.subscriptions, trainmsg.KindMacAddress)
	defer dispatch.UnsubscribeOrLogError(macNewsletter.Newsletter)
	trainUuidNewsletter := dispatch.SubscribeTyped[trainmsg.TrainUuid](r.subscriptions, trainmsg.KindTrainUuid)
	defer dispatch.UnsubscribeOrLogError(trainUuidNewsletter.Newsletter)
	versionNewsletter := dispatch.SubscribeTyped[trainmsg.VersionDetail](r.subscriptions, trainmsg.KindVersionDetail)
	defer dispatch.UnsubscribeOrLogError(versionNewsletter.Newsletter)
	for {
		select {
		case <-ctx.Done():
			return nil
		case movement := <-movementNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.LogMovement(train.ID, movement))
		case colorChanged := <-frontColorNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.LogColorEvent(train.ID, colorChanged))
		case colorChanged := <-backColorNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.LogColorEvent(train.ID, colorChanged))
		case macAddress := <-macNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.SetTrainIdentity(train.ID, nulls.NewString(macAddress.Mac), train.TrainUuid))
			train.Mac = nulls.NewString(macAddress.Mac)
		case trainUuid := <-trainUuidNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.SetTrainIdentity(train.ID, train.Mac, nulls.NewString(trainUuid.Uuid)))
			train.TrainUuid = nulls.NewString(trainUuid.Uuid)
		case versionDetail := <-versionNewsletter.Receive:
			r.logOrLogError(train.ID, r.mall.SetTrainVersions(train.ID, versionDetail))
		}
	}
}

// assureTrain retrieves the train by name and registers it if it is unknown.
func (r *Recorder) assureTrain() (stores.Train, error) {
	train, err := r.mall.TrainByName(r.trainName)
	if err == nil {
		return train, nil
	}
	if e, ok := errors.Cast(err); !ok || e.Code != errors.ErrNotFound {
		return stores.Train{}, errors.Wrap(err, "train by name", errors.Details{"name": r.trainName})
	}
	r.logger.Info("registering new train", zap.String("train", r.trainName))
	train, err = r.mall.CreateTrain(r.trainName)
	if err != nil {
		return stores.Train{}, errors.Wrap(err, "create train", errors.Details{"name": r.trainName})
	}
	return train, nil
}

// logOrLogError updates the last seen timestamp and logs the given persistence
// error if there was one.
func (r *Recorder) logOrLogError(trainID uuid.UUID, err error) {
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "persist message", nil))
		return
	}
	err = r.mall.RefreshLastSeenForTrain(trainID)
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "refresh last seen", nil))
	}
}
