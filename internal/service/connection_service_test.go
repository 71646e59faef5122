package service

import (
	"errors"
	"lifecircle_backend/internal/config"
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID uint = 1
	bobID   uint = 2
	carolID uint = 3
	dimID   uint = 4 // disabled account
)

type connFixture struct {
	svc      *ConnectionService
	conns    *fakeConnectionStore
	requests *fakeRequestStore
	users    *fakeUserDirectory
	notifier *fakeNotifier
}

func newConnFixture() *connFixture {
	users := &fakeUserDirectory{users: map[uint]*model.User{
		aliceID: {BaseModel: model.BaseModel{ID: aliceID}, Name: "Alice", EnabledCategories: model.CategorySet{"drinking", "travel"}},
		bobID:   {BaseModel: model.BaseModel{ID: bobID}, Name: "Bob", EnabledCategories: model.CategorySet{"drinking"}},
		carolID: {BaseModel: model.BaseModel{ID: carolID}, Name: "Carol", EnabledCategories: model.CategorySet{"travel"}},
		dimID:   {BaseModel: model.BaseModel{ID: dimID}, Name: "Dim", Disabled: true},
	}}
	conns := newFakeConnectionStore()
	requests := newFakeRequestStore()
	notifier := &fakeNotifier{}
	cfg := &config.Config{
		Connections: config.ConnectionsConfig{
			RequestTTL:       72 * time.Hour,
			MaxMessageLength: 255,
			StatusBatchLimit: 100,
		},
	}
	return &connFixture{
		svc:      NewConnectionService(conns, requests, users, notifier, cfg),
		conns:    conns,
		requests: requests,
		users:    users,
		notifier: notifier,
	}
}

// seedRequest plants a pending request directly in the store.
func (f *connFixture) seedRequest(t *testing.T, senderID, receiverID uint, expiresAt time.Time) *model.ConnectionRequest {
	t.Helper()
	req := &model.ConnectionRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		ExpiresAt:  expiresAt,
	}
	require.NoError(t, f.requests.Create(req))
	return req
}

func TestSendRequest_CreatesPendingRequest(t *testing.T) {
	f := newConnFixture()

	result, err := f.svc.SendRequest(aliceID, bobID, "hi Bob")
	require.NoError(t, err)
	assert.Equal(t, SendResultRequestSent, result.Code)
	require.NotEmpty(t, result.RequestID)

	stored, err := f.requests.FindByID(result.RequestID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, aliceID, stored.SenderID)
	assert.Equal(t, bobID, stored.ReceiverID)
	assert.Equal(t, "hi Bob", stored.Message)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), stored.ExpiresAt, 5*time.Second)

	notified := f.notifier.byKind(model.NotificationRequestReceived)
	require.Len(t, notified, 1)
	assert.Equal(t, bobID, notified[0].TargetUserID)
	assert.Equal(t, aliceID, notified[0].Payload.RelatedUserID)
	assert.Equal(t, "Alice", notified[0].Payload.RelatedUserName)
}

func TestSendRequest_SelfRequest(t *testing.T) {
	f := newConnFixture()

	_, err := f.svc.SendRequest(aliceID, aliceID, "")
	assert.ErrorIs(t, err, util.ErrSelfRequest)
	assert.Zero(t, f.requests.count())
}

func TestSendRequest_TargetNotFound(t *testing.T) {
	f := newConnFixture()

	_, err := f.svc.SendRequest(aliceID, 999, "")
	assert.ErrorIs(t, err, util.ErrTargetNotFound)

	// a disabled account is indistinguishable from a missing one
	_, err = f.svc.SendRequest(aliceID, dimID, "")
	assert.ErrorIs(t, err, util.ErrTargetNotFound)
}

func TestSendRequest_MessageTooLong(t *testing.T) {
	f := newConnFixture()

	_, err := f.svc.SendRequest(aliceID, bobID, strings.Repeat("好", 256))
	assert.ErrorIs(t, err, util.ErrMessageTooLong)
	assert.Zero(t, f.requests.count())

	// 255 runes is still within the bound
	_, err = f.svc.SendRequest(aliceID, bobID, strings.Repeat("好", 255))
	assert.NoError(t, err)
}

func TestSendRequest_AlreadyConnected(t *testing.T) {
	f := newConnFixture()
	_, err := f.conns.EstablishPair(aliceID, bobID)
	require.NoError(t, err)

	_, err = f.svc.SendRequest(aliceID, bobID, "")
	assert.ErrorIs(t, err, util.ErrAlreadyConnected)
	assert.Zero(t, f.requests.count())
}

func TestSendRequest_DuplicatePending(t *testing.T) {
	f := newConnFixture()

	_, err := f.svc.SendRequest(aliceID, bobID, "first")
	require.NoError(t, err)

	_, err = f.svc.SendRequest(aliceID, bobID, "second")
	assert.ErrorIs(t, err, util.ErrRequestAlreadyPending)
	assert.Equal(t, 1, f.requests.count())
}

func TestSendRequest_MutualMerge(t *testing.T) {
	f := newConnFixture()

	// Alice invites Bob; before accepting, Bob invites Alice back.
	first, err := f.svc.SendRequest(aliceID, bobID, "")
	require.NoError(t, err)
	require.Equal(t, SendResultRequestSent, first.Code)

	second, err := f.svc.SendRequest(bobID, aliceID, "")
	require.NoError(t, err)
	assert.Equal(t, SendResultConnectionEstablished, second.Code)
	assert.Empty(t, second.RequestID)

	// the original invitation is consumed, both directed edges exist
	assert.Zero(t, f.requests.count())
	assert.Equal(t, 2, f.conns.edgeCount())

	ab, err := f.conns.Get(aliceID, bobID)
	require.NoError(t, err)
	require.NotNil(t, ab)
	assert.Empty(t, ab.CategoryFlags)
	ba, err := f.conns.Get(bobID, aliceID)
	require.NoError(t, err)
	require.NotNil(t, ba)
	assert.Empty(t, ba.CategoryFlags)

	established := f.notifier.byKind(model.NotificationConnectionEstablished)
	require.Len(t, established, 2)
	targets := map[uint]bool{established[0].TargetUserID: true, established[1].TargetUserID: true}
	assert.True(t, targets[aliceID])
	assert.True(t, targets[bobID])
}

func TestSendRequest_ExpiredOppositeIsNotMerged(t *testing.T) {
	f := newConnFixture()
	f.seedRequest(t, bobID, aliceID, time.Now().Add(-time.Minute))

	result, err := f.svc.SendRequest(aliceID, bobID, "")
	require.NoError(t, err)
	assert.Equal(t, SendResultRequestSent, result.Code)

	// the stale opposite row was purged on read, only the new one remains
	assert.Equal(t, 1, f.requests.count())
	assert.Zero(t, f.conns.edgeCount())
}

func TestSendRequest_MergeEstablishmentFailure(t *testing.T) {
	f := newConnFixture()
	f.seedRequest(t, bobID, aliceID, time.Now().Add(time.Hour))
	f.conns.establishErr = errors.New("db down")

	_, err := f.svc.SendRequest(aliceID, bobID, "")
	assert.ErrorIs(t, err, util.ErrEdgeEstablishment)

	// documented gap: the opposite request is already gone and no edges exist
	assert.Zero(t, f.requests.count())
	assert.Zero(t, f.conns.edgeCount())
	assert.Empty(t, f.notifier.records)
}

func TestAcceptRequest_EstablishesEdges(t *testing.T) {
	f := newConnFixture()
	req := f.seedRequest(t, aliceID, bobID, time.Now().Add(time.Hour))

	pair, err := f.svc.AcceptRequest(req.ID, bobID)
	require.NoError(t, err)
	assert.Equal(t, EdgeRef{OwnerID: bobID, TargetID: aliceID}, pair.Forward)
	assert.Equal(t, EdgeRef{OwnerID: aliceID, TargetID: bobID}, pair.Reverse)

	assert.Equal(t, 2, f.conns.edgeCount())
	assert.Zero(t, f.requests.count())

	accepted := f.notifier.byKind(model.NotificationRequestAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, aliceID, accepted[0].TargetUserID)
	assert.Equal(t, bobID, accepted[0].Payload.RelatedUserID)
	assert.Equal(t, "Bob", accepted[0].Payload.RelatedUserName)
}

func TestAcceptRequest_NotFound(t *testing.T) {
	f := newConnFixture()

	_, err := f.svc.AcceptRequest("no-such-id", bobID)
	assert.ErrorIs(t, err, util.ErrRequestNotFound)
}

func TestAcceptRequest_WrongReceiverLooksAbsent(t *testing.T) {
	f := newConnFixture()
	req := f.seedRequest(t, aliceID, bobID, time.Now().Add(time.Hour))

	// Carol is not the receiver; she must not learn the request exists
	_, err := f.svc.AcceptRequest(req.ID, carolID)
	assert.ErrorIs(t, err, util.ErrRequestNotFound)
	assert.Equal(t, 1, f.requests.count())
}

func TestAcceptRequest_ExpiredIsPurged(t *testing.T) {
	f := newConnFixture()
	req := f.seedRequest(t, aliceID, bobID, time.Now().Add(-time.Minute))

	_, err := f.svc.AcceptRequest(req.ID, bobID)
	assert.ErrorIs(t, err, util.ErrRequestExpired)

	// detection deletes the row: the inbox is clean and a retry reports absence
	pending, err := f.svc.ListPendingRequests(bobID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.AcceptRequest(req.ID, bobID)
	assert.ErrorIs(t, err, util.ErrRequestNotFound)
}

func TestAcceptRequest_AlreadyConnectedCleansUp(t *testing.T) {
	f := newConnFixture()
	req := f.seedRequest(t, aliceID, bobID, time.Now().Add(time.Hour))
	_, err := f.conns.EstablishPair(bobID, aliceID)
	require.NoError(t, err)

	_, err = f.svc.AcceptRequest(req.ID, bobID)
	assert.ErrorIs(t, err, util.ErrAlreadyConnected)

	// the redundant request row was cleaned up
	assert.Zero(t, f.requests.count())
	assert.Equal(t, 2, f.conns.edgeCount())
}

func TestAcceptRequest_EstablishmentFailureKeepsRequest(t *testing.T) {
	f := newConnFixture()
	req := f.seedRequest(t, aliceID, bobID, time.Now().Add(time.Hour))
	f.conns.establishErr = errors.New("db down")

	_, err := f.svc.AcceptRequest(req.ID, bobID)
	assert.ErrorIs(t, err, util.ErrEdgeEstablishment)

	// edges before request deletion: the request survives and a retry works
	assert.Equal(t, 1, f.requests.count())
	assert.Zero(t, f.conns.edgeCount())

	f.conns.establishErr = nil
	_, err = f.svc.AcceptRequest(req.ID, bobID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.conns.edgeCount())
	assert.Zero(t, f.requests.count())
}

func TestDeleteConnection_RemovesBothEdges(t *testing.T) {
	f := newConnFixture()
	_, err := f.conns.EstablishPair(aliceID, bobID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteConnection(aliceID, bobID))
	assert.Zero(t, f.conns.edgeCount())
}

func TestDeleteConnection_NotFound(t *testing.T) {
	f := newConnFixture()

	err := f.svc.DeleteConnection(aliceID, bobID)
	assert.ErrorIs(t, err, util.ErrEdgeNotFound)
}

func TestDeleteConnection_ReverseFailureIsNotFatal(t *testing.T) {
	f := newConnFixture()
	_, err := f.conns.EstablishPair(aliceID, bobID)
	require.NoError(t, err)
	f.conns.deleteErrFor[edgeKey{bobID, aliceID}] = errors.New("db down")

	// own edge removed, reverse failure only logged
	require.NoError(t, f.svc.DeleteConnection(aliceID, bobID))

	own, err := f.conns.Get(aliceID, bobID)
	require.NoError(t, err)
	assert.Nil(t, own)
	reverse, err := f.conns.Get(bobID, aliceID)
	require.NoError(t, err)
	assert.NotNil(t, reverse)
}

func TestConnectionStatuses(t *testing.T) {
	f := newConnFixture()
	_, err := f.conns.EstablishPair(aliceID, bobID)
	require.NoError(t, err)
	f.seedRequest(t, aliceID, carolID, time.Now().Add(time.Hour))
	f.seedRequest(t, aliceID, dimID, time.Now().Add(-time.Minute)) // expired

	statuses, err := f.svc.ConnectionStatuses(aliceID, []uint{bobID, carolID, dimID, 999})
	require.NoError(t, err)
	require.Len(t, statuses, 4)

	assert.Equal(t, ConnectionStatus{UserID: bobID, IsConnected: true}, statuses[0])
	assert.Equal(t, ConnectionStatus{UserID: carolID, HasPendingRequest: true}, statuses[1])
	assert.Equal(t, ConnectionStatus{UserID: dimID}, statuses[2])
	assert.Equal(t, ConnectionStatus{UserID: 999}, statuses[3])

	// the expired row was lazily purged by the batch read
	assert.Equal(t, 1, f.requests.count())
}

func TestConnectionStatuses_BatchLimit(t *testing.T) {
	f := newConnFixture()

	ids := make([]uint, 101)
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	_, err := f.svc.ConnectionStatuses(aliceID, ids)
	require.Error(t, err)
	appErr, ok := util.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, util.KindValidation, appErr.Kind)
	assert.Equal(t, "too_many_candidates", appErr.Code)
}

func TestListPendingRequests_PurgesExpired(t *testing.T) {
	f := newConnFixture()
	live := f.seedRequest(t, aliceID, bobID, time.Now().Add(time.Hour))
	f.seedRequest(t, carolID, bobID, time.Now().Add(-time.Minute))

	pending, err := f.svc.ListPendingRequests(bobID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, live.ID, pending[0].ID)
	assert.Equal(t, 1, f.requests.count())
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newConnFixture()
	f.notifier.err = errors.New("redis down")

	result, err := f.svc.SendRequest(aliceID, bobID, "")
	require.NoError(t, err)
	assert.Equal(t, SendResultRequestSent, result.Code)
	assert.Equal(t, 1, f.requests.count())
}

func TestPurgeExpiredRequests(t *testing.T) {
	f := newConnFixture()
	f.seedRequest(t, aliceID, bobID, time.Now().Add(-time.Minute))
	f.seedRequest(t, aliceID, carolID, time.Now().Add(time.Hour))

	purged, err := f.svc.PurgeExpiredRequests()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1, f.requests.count())
}
