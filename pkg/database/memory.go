package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/models"
)

type memState struct {
	users   map[uuid.UUID]models.User
	rooms   map[uuid.UUID]models.Room
	queue   map[uuid.UUID]models.DJQueueEntry
	votes   map[uuid.UUID]models.Vote
	history []models.SongHistoryEntry
}

func newMemState() *memState {
	return &memState{
		users: make(map[uuid.UUID]models.User),
		rooms: make(map[uuid.UUID]models.Room),
		queue: make(map[uuid.UUID]models.DJQueueEntry),
		votes: make(map[uuid.UUID]models.Vote),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.queue {
		v.Songs = v.Songs.Clone()
		c.queue[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	c.history = append([]models.SongHistoryEntry(nil), s.history...)
	return c
}

// MemoryStore is an in-process Store. A single mutex serializes every
// operation, and InTx holds it for the whole callback, so it behaves like a
// fully serialized database. fn must only use the Tx it is handed.
type MemoryStore struct {
	mu sync.Mutex
	st *memState
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *MemoryStore) do(ctx context.Context, fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{st: m.st})
}

func (m *MemoryStore) EnsureUser(ctx context.Context, user *models.User) error {
	return m.do(ctx, func(tx *memTx) error { return tx.EnsureUser(ctx, user) })
}

func (m *MemoryStore) SetAdmin(ctx context.Context, userID uuid.UUID, admin bool) error {
	return m.do(ctx, func(tx *memTx) error { return tx.SetAdmin(ctx, userID, admin) })
}

func (m *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (user *models.User, err error) {
	err = m.do(ctx, func(tx *memTx) error { user, err = tx.GetUser(ctx, id); return err })
	return
}

func (m *MemoryStore) CreateRoom(ctx context.Context, room *models.Room) error {
	return m.do(ctx, func(tx *memTx) error { return tx.CreateRoom(ctx, room) })
}

func (m *MemoryStore) GetRoom(ctx context.Context, id uuid.UUID) (room *models.Room, err error) {
	err = m.do(ctx, func(tx *memTx) error { room, err = tx.GetRoom(ctx, id); return err })
	return
}

func (m *MemoryStore) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return m.GetRoom(ctx, id)
}

func (m *MemoryStore) GetRoomBySlug(ctx context.Context, slug string) (room *models.Room, err error) {
	err = m.do(ctx, func(tx *memTx) error { room, err = tx.GetRoomBySlug(ctx, slug); return err })
	return
}

func (m *MemoryStore) SlugExists(ctx context.Context, slug string) (ok bool, err error) {
	err = m.do(ctx, func(tx *memTx) error { ok, err = tx.SlugExists(ctx, slug); return err })
	return
}

func (m *MemoryStore) UpdateRoomSettings(ctx context.Context, id uuid.UUID, s RoomSettings) error {
	return m.do(ctx, func(tx *memTx) error { return tx.UpdateRoomSettings(ctx, id, s) })
}

func (m *MemoryStore) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return m.do(ctx, func(tx *memTx) error { return tx.DeleteRoom(ctx, id) })
}

func (m *MemoryStore) SetPlayback(ctx context.Context, roomID uuid.UUID, p models.Playback) error {
	return m.do(ctx, func(tx *memTx) error { return tx.SetPlayback(ctx, roomID, p) })
}

func (m *MemoryStore) ActivateDJIfIdle(ctx context.Context, roomID, userID uuid.UUID, spot int) (ok bool, err error) {
	err = m.do(ctx, func(tx *memTx) error { ok, err = tx.ActivateDJIfIdle(ctx, roomID, userID, spot); return err })
	return
}

func (m *MemoryStore) ClaimSkip(ctx context.Context, roomID uuid.UUID, now time.Time, staleBefore *time.Time) (ok bool, err error) {
	err = m.do(ctx, func(tx *memTx) error { ok, err = tx.ClaimSkip(ctx, roomID, now, staleBefore); return err })
	return
}

func (m *MemoryStore) ListQueue(ctx context.Context, roomID uuid.UUID) (entries []models.DJQueueEntry, err error) {
	err = m.do(ctx, func(tx *memTx) error { entries, err = tx.ListQueue(ctx, roomID); return err })
	return
}

func (m *MemoryStore) GetQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (entry *models.DJQueueEntry, err error) {
	err = m.do(ctx, func(tx *memTx) error { entry, err = tx.GetQueueEntry(ctx, roomID, userID); return err })
	return
}

func (m *MemoryStore) InsertQueueEntry(ctx context.Context, entry *models.DJQueueEntry) error {
	return m.do(ctx, func(tx *memTx) error { return tx.InsertQueueEntry(ctx, entry) })
}

func (m *MemoryStore) UpdateQueueSongs(ctx context.Context, roomID, userID uuid.UUID, songs models.TrackList) error {
	return m.do(ctx, func(tx *memTx) error { return tx.UpdateQueueSongs(ctx, roomID, userID, songs) })
}

func (m *MemoryStore) DeleteQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (ok bool, err error) {
	err = m.do(ctx, func(tx *memTx) error { ok, err = tx.DeleteQueueEntry(ctx, roomID, userID); return err })
	return
}

func (m *MemoryStore) GetVote(ctx context.Context, roomID, userID uuid.UUID, trackKey string) (vote *models.Vote, err error) {
	err = m.do(ctx, func(tx *memTx) error { vote, err = tx.GetVote(ctx, roomID, userID, trackKey); return err })
	return
}

func (m *MemoryStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	return m.do(ctx, func(tx *memTx) error { return tx.InsertVote(ctx, vote) })
}

func (m *MemoryStore) UpdateVoteType(ctx context.Context, id uuid.UUID, voteType models.VoteType) error {
	return m.do(ctx, func(tx *memTx) error { return tx.UpdateVoteType(ctx, id, voteType) })
}

func (m *MemoryStore) DeleteVote(ctx context.Context, id uuid.UUID) error {
	return m.do(ctx, func(tx *memTx) error { return tx.DeleteVote(ctx, id) })
}

func (m *MemoryStore) ListVotes(ctx context.Context, roomID uuid.UUID, trackKey string) (votes []models.Vote, err error) {
	err = m.do(ctx, func(tx *memTx) error { votes, err = tx.ListVotes(ctx, roomID, trackKey); return err })
	return
}

func (m *MemoryStore) AppendHistory(ctx context.Context, entry *models.SongHistoryEntry) error {
	return m.do(ctx, func(tx *memTx) error { return tx.AppendHistory(ctx, entry) })
}

func (m *MemoryStore) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) (entries []models.SongHistoryEntry, err error) {
	err = m.do(ctx, func(tx *memTx) error { entries, err = tx.ListHistory(ctx, roomID, limit); return err })
	return
}

// memTx operates on a state snapshot without locking; the owning
// MemoryStore holds the mutex.
type memTx struct {
	st *memState
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func (t *memTx) EnsureUser(_ context.Context, user *models.User) error {
	if _, ok := t.st.users[user.ID]; ok {
		return nil
	}
	for _, u := range t.st.users {
		if user.Username != "" && u.Username == user.Username {
			return nil
		}
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)
	t.st.users[user.ID] = *user
	return nil
}

func (t *memTx) SetAdmin(_ context.Context, userID uuid.UUID, admin bool) error {
	u, ok := t.st.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsAdmin = admin
	u.UpdatedAt = time.Now().UTC()
	t.st.users[userID] = u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) CreateRoom(_ context.Context, room *models.Room) error {
	if _, ok := t.st.rooms[room.ID]; ok {
		return ErrConflict
	}
	for _, r := range t.st.rooms {
		if r.Slug == room.Slug {
			return ErrConflict
		}
	}
	stamp(&room.CreatedAt, &room.UpdatedAt)
	t.st.rooms[room.ID] = *room
	return nil
}

func (t *memTx) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r, ok := t.st.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return t.GetRoom(ctx, id)
}

func (t *memTx) GetRoomBySlug(_ context.Context, slug string) (*models.Room, error) {
	for _, r := range t.st.rooms {
		if r.Slug == slug {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := t.GetRoomBySlug(ctx, slug)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (t *memTx) UpdateRoomSettings(_ context.Context, id uuid.UUID, s RoomSettings) error {
	r, ok := t.st.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if s.Name != nil {
		r.Name = *s.Name
	}
	if s.Description != nil {
		d := *s.Description
		r.Description = &d
	}
	if s.LameThreshold != nil {
		r.LameThreshold = *s.LameThreshold
	}
	if s.OwnerID != nil {
		r.OwnerID = *s.OwnerID
	}
	r.UpdatedAt = time.Now().UTC()
	t.st.rooms[id] = r
	return nil
}

func (t *memTx) DeleteRoom(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.rooms, id)
	for k, e := range t.st.queue {
		if e.RoomID == id {
			delete(t.st.queue, k)
		}
	}
	for k, v := range t.st.votes {
		if v.RoomID == id {
			delete(t.st.votes, k)
		}
	}
	kept := t.st.history[:0]
	for _, h := range t.st.history {
		if h.RoomID != id {
			kept = append(kept, h)
		}
	}
	t.st.history = kept
	return nil
}

func (t *memTx) SetPlayback(_ context.Context, roomID uuid.UUID, p models.Playback) error {
	r, ok := t.st.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.ApplyPlayback(p)
	r.UpdatedAt = time.Now().UTC()
	t.st.rooms[roomID] = r
	return nil
}

func (t *memTx) ActivateDJIfIdle(_ context.Context, roomID, userID uuid.UUID, spot int) (bool, error) {
	r, ok := t.st.rooms[roomID]
	if !ok || r.CurrentDJID != nil {
		return false, nil
	}
	r.ApplyPlayback(models.Picking(userID, spot))
	r.UpdatedAt = time.Now().UTC()
	t.st.rooms[roomID] = r
	return true, nil
}

func (t *memTx) ClaimSkip(_ context.Context, roomID uuid.UUID, now time.Time, staleBefore *time.Time) (bool, error) {
	r, ok := t.st.rooms[roomID]
	if !ok {
		return false, nil
	}
	if staleBefore != nil && r.LastSkippedAt != nil && !r.LastSkippedAt.Before(*staleBefore) {
		return false, nil
	}
	n := now
	r.LastSkippedAt = &n
	t.st.rooms[roomID] = r
	return true, nil
}

func (t *memTx) ListQueue(_ context.Context, roomID uuid.UUID) ([]models.DJQueueEntry, error) {
	var out []models.DJQueueEntry
	for _, e := range t.st.queue {
		if e.RoomID == roomID {
			e.Songs = e.Songs.Clone()
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spot < out[j].Spot })
	return out, nil
}

func (t *memTx) findEntry(roomID, userID uuid.UUID) (uuid.UUID, models.DJQueueEntry, bool) {
	for k, e := range t.st.queue {
		if e.RoomID == roomID && e.UserID == userID {
			return k, e, true
		}
	}
	return uuid.Nil, models.DJQueueEntry{}, false
}

func (t *memTx) GetQueueEntry(_ context.Context, roomID, userID uuid.UUID) (*models.DJQueueEntry, error) {
	_, e, ok := t.findEntry(roomID, userID)
	if !ok {
		return nil, ErrNotFound
	}
	e.Songs = e.Songs.Clone()
	return &e, nil
}

func (t *memTx) InsertQueueEntry(_ context.Context, entry *models.DJQueueEntry) error {
	for _, e := range t.st.queue {
		if e.RoomID != entry.RoomID {
			continue
		}
		if e.Spot == entry.Spot || e.UserID == entry.UserID {
			return ErrConflict
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	stamp(&entry.CreatedAt, &entry.UpdatedAt)
	stored := *entry
	stored.Songs = entry.Songs.Clone()
	t.st.queue[entry.ID] = stored
	return nil
}

func (t *memTx) UpdateQueueSongs(_ context.Context, roomID, userID uuid.UUID, songs models.TrackList) error {
	k, e, ok := t.findEntry(roomID, userID)
	if !ok {
		return ErrNotFound
	}
	e.Songs = songs.Clone()
	e.UpdatedAt = time.Now().UTC()
	t.st.queue[k] = e
	return nil
}

func (t *memTx) DeleteQueueEntry(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	k, _, ok := t.findEntry(roomID, userID)
	if !ok {
		return false, nil
	}
	delete(t.st.queue, k)
	return true, nil
}

func (t *memTx) GetVote(_ context.Context, roomID, userID uuid.UUID, trackKey string) (*models.Vote, error) {
	for _, v := range t.st.votes {
		if v.RoomID == roomID && v.UserID == userID && v.TrackKey == trackKey {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertVote(ctx context.Context, vote *models.Vote) error {
	if _, err := t.GetVote(ctx, vote.RoomID, vote.UserID, vote.TrackKey); err == nil {
		return ErrConflict
	}
	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	stamp(&vote.CreatedAt, &vote.UpdatedAt)
	t.st.votes[vote.ID] = *vote
	return nil
}

func (t *memTx) UpdateVoteType(_ context.Context, id uuid.UUID, voteType models.VoteType) error {
	v, ok := t.st.votes[id]
	if !ok {
		return ErrNotFound
	}
	v.VoteType = voteType
	v.UpdatedAt = time.Now().UTC()
	t.st.votes[id] = v
	return nil
}

func (t *memTx) DeleteVote(_ context.Context, id uuid.UUID) error {
	delete(t.st.votes, id)
	return nil
}

func (t *memTx) ListVotes(_ context.Context, roomID uuid.UUID, trackKey string) ([]models.Vote, error) {
	var out []models.Vote
	for _, v := range t.st.votes {
		if v.RoomID == roomID && v.TrackKey == trackKey {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) AppendHistory(_ context.Context, entry *models.SongHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	t.st.history = append(t.st.history, *entry)
	return nil
}

func (t *memTx) ListHistory(_ context.Context, roomID uuid.UUID, limit int) ([]models.SongHistoryEntry, error) {
	var out []models.SongHistoryEntry
	for i := len(t.st.history) - 1; i >= 0; i-- {
		h := t.st.history[i]
		if h.RoomID != roomID {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
