package recording

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/trainhub/dispatch"
	"github.com/lefinal/trainhub/errors"
	"github.com/lefinal/trainhub/stores"
	"github.com/lefinal/trainhub/trainmsg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"testing"
	"time"
)

const waitTimeout = 5 * time.Second

// MallMock mocks Mall.
type MallMock struct {
	mock.Mock
}

func (m *MallMock) TrainByName(name string) (stores.Train, error) {
	args := m.Called(name)
	return args.Get(0).(stores.Train), args.Error(1)
}

func (m *MallMock) CreateTrain(name string) (stores.Train, error) {
	args := m.Called(name)
	return args.Get(0).(stores.Train), args.Error(1)
}

func (m *MallMock) RefreshLastSeenForTrain(trainID uuid.UUID) error {
	return m.Called(trainID).Error(0)
}

func (m *MallMock) SetTrainIdentity(trainID uuid.UUID, mac, trainUuid nulls.String) error {
	return m.Called(trainID, mac, trainUuid).Error(0)
}

func (m *MallMock) SetTrainVersions(trainID uuid.UUID, versionDetail trainmsg.VersionDetail) error {
	return m.Called(trainID, versionDetail).Error(0)
}

func (m *MallMock) LogMovement(trainID uuid.UUID, movement trainmsg.Movement) error {
	return m.Called(trainID, movement).Error(0)
}

func (m *MallMock) LogColorEvent(trainID uuid.UUID, colorChanged trainmsg.SensorColorChanged) error {
	return m.Called(trainID, colorChanged).Error(0)
}

// RecorderTestSuite tests Recorder.
type RecorderTestSuite struct {
	suite.Suite
	mall          *MallMock
	subscriptions *dispatch.SubscriptionManager
	recorder      *Recorder
	train         stores.Train
	lifetime      context.Context
	shutdown      context.CancelFunc
	recorderDone  chan struct{}
}

func (suite *RecorderTestSuite) SetupTest() {
	suite.mall = &MallMock{}
	suite.subscriptions = dispatch.NewSubscriptionManager()
	suite.recorder = NewRecorder(zap.NewNop(), suite.mall, suite.subscriptions, "blue-train")
	suite.train = stores.Train{
		ID:       uuid.New(),
		Name:     "blue-train",
		LastSeen: time.Now(),
	}
	suite.lifetime, suite.shutdown = context.WithTimeout(context.Background(), waitTimeout)
	suite.recorderDone = make(chan struct{})
}

func (suite *RecorderTestSuite) TearDownTest() {
	suite.shutdown()
	select {
	case <-suite.recorderDone:
	case <-time.After(waitTimeout):
		suite.Fail("recorder did not shut down")
	}
}

// run runs the Recorder for a known train.
func (suite *RecorderTestSuite) run() {
	suite.mall.On("TrainByName", "blue-train").Return(suite.train, nil).Once()
	go func() {
		defer close(suite.recorderDone)
		err := suite.recorder.Run(suite.lifetime)
		suite.Require().NoError(err, "run should not fail")
	}()
}

// handleUntilForwarded retries handling the decoded frame until a subscription
// picked it up.
func (suite *RecorderTestSuite) handleUntilForwarded(frame []byte, ch trainmsg.Channel) {
	msg := trainmsg.Decode(frame, ch)
	for {
		if suite.subscriptions.HandleMsg(msg) > 0 {
			return
		}
		select {
		case <-suite.lifetime.Done():
			suite.Fail("message was never forwarded")
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (suite *RecorderTestSuite) TestRegisterNewTrain() {
	created := make(chan struct{})
	suite.mall.On("TrainByName", "blue-train").
		Return(stores.Train{}, errors.NewResourceNotFoundError("train blue-train not found", nil)).Once()
	suite.mall.On("CreateTrain", "blue-train").
		Run(func(_ mock.Arguments) { close(created) }).Return(suite.train, nil).Once()
	go func() {
		defer close(suite.recorderDone)
		err := suite.recorder.Run(suite.lifetime)
		suite.Require().NoError(err, "run should not fail")
	}()
	select {
	case <-created:
	case <-suite.lifetime.Done():
		suite.Fail("train was never created")
	}
	suite.mall.AssertExpectations(suite.T())
}

func (suite *RecorderTestSuite) TestLogMovement() {
	logged := make(chan struct{})
	suite.mall.On("LogMovement", suite.train.ID, mock.Anything).Return(nil).Once()
	suite.mall.On("RefreshLastSeenForTrain", suite.train.ID).
		Run(func(_ mock.Arguments) { close(logged) }).Return(nil).Once()
	suite.run()
	movementFrame := []byte{0xB7, 0x12,
		0x01, // Forward.
		0x01, 0x2C,
		0xFF - 0x80,
		0x01,
		0x01, 0x90,
		0x00,
		0x00,
		0x00, 0x00, 0x00,
		0x00, 0x01, 0xE2, 0x40,
		0x00, 0x00}
	suite.handleUntilForwarded(movementFrame, trainmsg.ChannelResponse)
	select {
	case <-logged:
	case <-suite.lifetime.Done():
		suite.Fail("movement was never logged")
	}
	suite.mall.AssertExpectations(suite.T())
}

func (suite *RecorderTestSuite) TestLogColorEvent() {
	logged := make(chan struct{})
	suite.mall.On("LogColorEvent", suite.train.ID, mock.Anything).Return(nil).Once()
	suite.mall.On("RefreshLastSeenForTrain", suite.train.ID).
		Run(func(_ mock.Arguments) { close(logged) }).Return(nil).Once()
	suite.run()
	frontColorFrame := []byte{0xE0, 0x0A,
		0x07,
		0x00, 0x00, 0x00, 0x2A,
		0x00, 0x00, 0xBE, 0xEF,
		0x02}
	suite.handleUntilForwarded(frontColorFrame, trainmsg.ChannelEvent)
	select {
	case <-logged:
	case <-suite.lifetime.Done():
		suite.Fail("color event was never logged")
	}
	suite.mall.AssertExpectations(suite.T())
}

func (suite *RecorderTestSuite) TestSetIdentityFromMacAddress() {
	updated := make(chan struct{})
	suite.mall.On("SetTrainIdentity", suite.train.ID,
		nulls.NewString("f8:32:05:42:13:37"), nulls.String{}).Return(nil).Once()
	suite.mall.On("RefreshLastSeenForTrain", suite.train.ID).
		Run(func(_ mock.Arguments) { close(updated) }).Return(nil).Once()
	suite.run()
	macFrame := []byte{0x42, 0x06, 0xF8, 0x32, 0x05, 0x42, 0x13, 0x37}
	suite.handleUntilForwarded(macFrame, trainmsg.ChannelResponse)
	select {
	case <-updated:
	case <-suite.lifetime.Done():
		suite.Fail("identity was never updated")
	}
	suite.mall.AssertExpectations(suite.T())
}

func (suite *RecorderTestSuite) TestSetVersions() {
	updated := make(chan struct{})
	suite.mall.On("SetTrainVersions", suite.train.ID, mock.Anything).Return(nil).Once()
	suite.mall.On("RefreshLastSeenForTrain", suite.train.ID).
		Run(func(_ mock.Arguments) { close(updated) }).Return(nil).Once()
	suite.run()
	versionFrame := []byte{0x07, 0x09, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x04, 0x09}
	suite.handleUntilForwarded(versionFrame, trainmsg.ChannelResponse)
	select {
	case <-updated:
	case <-suite.lifetime.Done():
		suite.Fail("versions were never updated")
	}
	suite.mall.AssertExpectations(suite.T())
}

func (suite *RecorderTestSuite) TestPersistenceErrorDoesNotStopRun() {
	handled := make(chan struct{})
	suite.mall.On("LogMovement", suite.train.ID, mock.Anything).
		Run(func(_ mock.Arguments) { close(handled) }).
		Return(errors.NewInternalError("sad life", nil)).Once()
	suite.run()
	movementFrame := []byte{0xB7, 0x12,
		0x00,
		0x00, 0x00,
		0xFF,
		0x00,
		0x00, 0x00,
		0x00,
		0x00,
		0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00}
	suite.handleUntilForwarded(movementFrame, trainmsg.ChannelResponse)
	select {
	case <-handled:
	case <-suite.lifetime.Done():
		suite.Fail("movement was never handled")
	}
	// The recorder must still be running.
	select {
	case <-suite.recorderDone:
		suite.Fail("recorder stopped because of persistence error")
	default:
	}
	suite.mall.AssertExpectations(suite.T())
}

func TestRecorder(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}
