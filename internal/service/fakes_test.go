package service

import (
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"sort"
	"time"
)

// In-memory store fakes. They mirror the storage-layer guarantees the
// services rely on: the unique (sender, receiver) pair on requests, the
// one-row-per-direction edge key, and idempotent pair establishment.

type fakeUserDirectory struct {
	users map[uint]*model.User
}

func (f *fakeUserDirectory) FindByID(id uint) (*model.User, error) {
	return f.users[id], nil
}

func (f *fakeUserDirectory) FindByIDs(ids []uint) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeRequestStore struct {
	byID      map[string]*model.ConnectionRequest
	createErr error
	deleteErr error
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{byID: make(map[string]*model.ConnectionRequest)}
}

func (f *fakeRequestStore) Create(req *model.ConnectionRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID {
			return util.ErrRequestAlreadyPending
		}
	}
	if req.ID == "" {
		req.ID = model.GenerateUUID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	cp := *req
	f.byID[req.ID] = &cp
	return nil
}

func (f *fakeRequestStore) FindByID(id string) (*model.ConnectionRequest, error) {
	req, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestStore) FindLive(senderID, receiverID uint, now time.Time) (*model.ConnectionRequest, error) {
	for _, req := range f.byID {
		if req.SenderID != senderID || req.ReceiverID != receiverID {
			continue
		}
		if req.Expired(now) {
			delete(f.byID, req.ID)
			return nil, nil
		}
		cp := *req
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRequestStore) Delete(id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRequestStore) ListPendingForReceiver(receiverID uint, now time.Time) ([]model.ConnectionRequest, error) {
	var out []model.ConnectionRequest
	for _, req := range f.byID {
		if req.ReceiverID != receiverID {
			continue
		}
		if req.Expired(now) {
			delete(f.byID, req.ID)
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRequestStore) PendingTargetsIn(senderID uint, candidateIDs []uint, now time.Time) (map[uint]bool, error) {
	candidates := make(map[uint]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		candidates[id] = true
	}
	result := make(map[uint]bool)
	for _, req := range f.byID {
		if req.SenderID != senderID || !candidates[req.ReceiverID] {
			continue
		}
		if req.Expired(now) {
			delete(f.byID, req.ID)
			continue
		}
		result[req.ReceiverID] = true
	}
	return result, nil
}

func (f *fakeRequestStore) DeleteExpiredBefore(now time.Time) (int64, error) {
	var purged int64
	for id, req := range f.byID {
		if req.Expired(now) {
			delete(f.byID, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeRequestStore) count() int {
	return len(f.byID)
}

type edgeKey struct {
	owner, target uint
}

type fakeConnectionStore struct {
	edges        map[edgeKey]*model.ConnectionEdge
	establishErr error
	deleteErrFor map[edgeKey]error
}

func newFakeConnectionStore() *fakeConnectionStore {
	return &fakeConnectionStore{
		edges:        make(map[edgeKey]*model.ConnectionEdge),
		deleteErrFor: make(map[edgeKey]error),
	}
}

func (f *fakeConnectionStore) EstablishPair(userAID, userBID uint) (bool, error) {
	if f.establishErr != nil {
		return false, f.establishErr
	}
	created := false
	for _, key := range []edgeKey{{userAID, userBID}, {userBID, userAID}} {
		if _, ok := f.edges[key]; ok {
			continue
		}
		now := time.Now()
		f.edges[key] = &model.ConnectionEdge{
			OwnerID:       key.owner,
			TargetID:      key.target,
			CategoryFlags: model.CategoryFlags{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created = true
	}
	return created, nil
}

func (f *fakeConnectionStore) Get(ownerID, targetID uint) (*model.ConnectionEdge, error) {
	edge, ok := f.edges[edgeKey{ownerID, targetID}]
	if !ok {
		return nil, nil
	}
	cp := *edge
	cp.CategoryFlags = edge.CategoryFlags.Clone()
	return &cp, nil
}

func (f *fakeConnectionStore) Exists(ownerID, targetID uint) (bool, error) {
	_, ok := f.edges[edgeKey{ownerID, targetID}]
	return ok, nil
}

func (f *fakeConnectionStore) UpdateFlags(ownerID, targetID uint, flags model.CategoryFlags) error {
	edge, ok := f.edges[edgeKey{ownerID, targetID}]
	if !ok {
		return nil
	}
	edge.CategoryFlags = flags.Clone()
	edge.UpdatedAt = time.Now()
	return nil
}

func (f *fakeConnectionStore) Delete(ownerID, targetID uint) (bool, error) {
	key := edgeKey{ownerID, targetID}
	if err := f.deleteErrFor[key]; err != nil {
		return false, err
	}
	if _, ok := f.edges[key]; !ok {
		return false, nil
	}
	delete(f.edges, key)
	return true, nil
}

func (f *fakeConnectionStore) ListConnections(ownerID uint, query string) ([]model.User, error) {
	return nil, nil
}

func (f *fakeConnectionStore) ConnectedIDsCached(ownerID uint) ([]uint, error) {
	var ids []uint
	for key := range f.edges {
		if key.owner == ownerID {
			ids = append(ids, key.target)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeConnectionStore) OwnedTargetsIn(ownerID uint, candidateIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool)
	for _, id := range candidateIDs {
		if _, ok := f.edges[edgeKey{ownerID, id}]; ok {
			result[id] = true
		}
	}
	return result, nil
}

func (f *fakeConnectionStore) edgeCount() int {
	return len(f.edges)
}

type fakeNotifier struct {
	records []*model.Notification
	err     error
}

func (f *fakeNotifier) Emit(n *model.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, n)
	return nil
}

func (f *fakeNotifier) byKind(kind model.NotificationKind) []*model.Notification {
	var out []*model.Notification
	for _, n := range f.records {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
