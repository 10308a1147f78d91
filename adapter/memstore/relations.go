package memstore

import (
	"context"
	"sort"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

func cloneGoal(g *types.Goal) *types.Goal {
	c := *g
	c.Objectives = append([]types.Objective(nil), g.Objectives...)
	return &c
}

func (s *Store) GetGoals(_ context.Context, p adapter.GetGoalsParams) ([]*types.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Goal
	for _, g := range s.goals {
		if g.RoomID != p.RoomID {
			continue
		}
		if p.UserID != "" && g.UserID != p.UserID {
			continue
		}
		if p.OnlyInProgress && g.Status != types.GoalInProgress {
			continue
		}
		out = append(out, cloneGoal(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if p.Count > 0 && len(out) > p.Count {
		out = out[:p.Count]
	}
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, g *types.Goal) error {
	if g.ID == "" {
		g.ID = types.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return adapter.DuplicateError("goal", g.ID)
	}
	s.goals[g.ID] = cloneGoal(g)
	return nil
}

func (s *Store) UpdateGoal(_ context.Context, g *types.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		return types.NewError(types.ErrNotFound, "goal "+g.ID+" not found")
	}
	s.goals[g.ID] = cloneGoal(g)
	return nil
}

func (s *Store) RemoveGoal(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.goals, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveAllGoals(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.goals {
		if g.RoomID == roomID {
			delete(s.goals, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accounts, rooms and participants
// ---------------------------------------------------------------------------

func (s *Store) GetAccountByID(_ context.Context, id string) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *Store) CreateAccount(_ context.Context, a *types.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return false, nil
	}
	c := *a
	s.accounts[a.ID] = &c
	return true, nil
}

func (s *Store) GetActorDetails(_ context.Context, roomID string) ([]types.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.participants[roomID]))
	for uid := range s.participants[roomID] {
		users = append(users, uid)
	}
	sort.Strings(users)

	actors := make([]types.Actor, 0, len(users))
	for _, uid := range users {
		a, ok := s.accounts[uid]
		if !ok {
			continue
		}
		actors = append(actors, types.Actor{
			ID:       a.ID,
			Name:     a.Name,
			Username: a.Username,
			Details:  actorDetails(a.Details),
		})
	}
	return actors, nil
}

func actorDetails(d map[string]any) types.ActorDetails {
	str := func(k string) string {
		v, _ := d[k].(string)
		return v
	}
	return types.ActorDetails{Tagline: str("tagline"), Summary: str("summary"), Quote: str("quote")}
}

func (s *Store) GetRoom(_ context.Context, roomID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return "", nil
	}
	return roomID, nil
}

func (s *Store) CreateRoom(_ context.Context, roomID string) (string, error) {
	if roomID == "" {
		roomID = types.NewID()
	}
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
	return roomID, nil
}

func (s *Store) RemoveRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.participants, roomID)
	return nil
}

func (s *Store) GetRoomsForParticipant(ctx context.Context, userID string) ([]string, error) {
	return s.GetRoomsForParticipants(ctx, []string{userID})
}

func (s *Store) GetRoomsForParticipants(_ context.Context, userIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rooms []string
	for roomID, members := range s.participants {
		for _, uid := range userIDs {
			if _, ok := members[uid]; ok {
				rooms = append(rooms, roomID)
				break
			}
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (s *Store) AddParticipant(_ context.Context, userID, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.participants[roomID]
	if members == nil {
		members = make(map[string]*participant)
		s.participants[roomID] = members
	}
	if _, ok := members[userID]; ok {
		return false, nil
	}
	members[userID] = &participant{}
	return true, nil
}

func (s *Store) RemoveParticipant(_ context.Context, userID, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.participants[roomID]
	if _, ok := members[userID]; !ok {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

func (s *Store) GetParticipantsForAccount(_ context.Context, userID string) ([]types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Participant
	for roomID, members := range s.participants {
		if _, ok := members[userID]; !ok {
			continue
		}
		p := types.Participant{ID: types.StringToUUID(roomID + "-" + userID)}
		if a, ok := s.accounts[userID]; ok {
			p.Account = *a
		} else {
			p.Account = types.Account{ID: userID}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetParticipantsForRoom(_ context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.participants[roomID]))
	for uid := range s.participants[roomID] {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) GetParticipantUserState(_ context.Context, roomID, userID string) (types.ParticipantUserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.participants[roomID][userID]; ok {
		return p.state, nil
	}
	return types.ParticipantNone, nil
}

func (s *Store) SetParticipantUserState(_ context.Context, roomID, userID string, state types.ParticipantUserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return types.NewError(types.ErrNotFound, "participant "+userID+" is not in room "+roomID)
	}
	p.state = state
	return nil
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func cacheKey(key, agentID string) string { return agentID + "\x00" + key }

func (s *Store) GetCache(_ context.Context, key, agentID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[cacheKey(key, agentID)]
	return v, ok, nil
}

func (s *Store) SetCache(_ context.Context, key, agentID, value string) error {
	s.mu.Lock()
	s.cache[cacheKey(key, agentID)] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteCache(_ context.Context, key, agentID string) error {
	s.mu.Lock()
	delete(s.cache, cacheKey(key, agentID))
	s.mu.Unlock()
	return nil
}
