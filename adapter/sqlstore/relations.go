package sqlstore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// ---------------------------------------------------------------------------
// Goals
// ---------------------------------------------------------------------------

func (s *Store) GetGoals(ctx context.Context, p adapter.GetGoalsParams) ([]*types.Goal, error) {
	q := s.db.WithContext(ctx).Model(&goalRecord{}).Where("room_id = ?", p.RoomID)
	if p.UserID != "" {
		q = q.Where("user_id = ?", p.UserID)
	}
	if p.OnlyInProgress {
		q = q.Where("status = ?", string(types.GoalInProgress))
	}
	q = q.Order("id")
	if p.Count > 0 {
		q = q.Limit(p.Count)
	}
	var recs []goalRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storageError(err, "get goals")
	}
	out := make([]*types.Goal, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toGoal())
	}
	return out, nil
}

func (s *Store) CreateGoal(ctx context.Context, g *types.Goal) error {
	if g.ID == "" {
		g.ID = types.NewID()
	}
	if err := s.db.WithContext(ctx).Create(goalToRecord(g)).Error; err != nil {
		if isUniqueViolation(err) {
			return adapter.DuplicateError("goal", g.ID)
		}
		return storageError(err, "create goal")
	}
	return nil
}

func (s *Store) UpdateGoal(ctx context.Context, g *types.Goal) error {
	db := s.db.WithContext(ctx)
	found, err := exists(db, &goalRecord{}, map[string]any{"id": g.ID})
	if err != nil {
		return storageError(err, "update goal")
	}
	if !found {
		return types.NewError(types.ErrNotFound, "goal "+g.ID+" not found")
	}
	rec := goalToRecord(g)
	err = db.Model(&goalRecord{}).Where("id = ?", g.ID).Updates(map[string]any{
		"room_id":    rec.RoomID,
		"user_id":    rec.UserID,
		"name":       rec.Name,
		"status":     rec.Status,
		"objectives": rec.Objectives,
	}).Error
	return storageError(err, "update goal")
}

func (s *Store) RemoveGoal(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&goalRecord{}).Error
	return storageError(err, "remove goal")
}

func (s *Store) RemoveAllGoals(ctx context.Context, roomID string) error {
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&goalRecord{}).Error
	return storageError(err, "remove room goals")
}

// ---------------------------------------------------------------------------
// Accounts, rooms and participants
// ---------------------------------------------------------------------------

func (s *Store) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	var recs []accountRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&recs).Error; err != nil {
		return nil, storageError(err, "get account")
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0].toAccount(), nil
}

func (s *Store) CreateAccount(ctx context.Context, a *types.Account) (bool, error) {
	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	rec := &accountRecord{
		ID:        a.ID,
		Name:      a.Name,
		Username:  a.Username,
		Email:     a.Email,
		AvatarURL: a.AvatarURL,
		Details:   newJSON(details),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, storageError(err, "create account")
	}
	return true, nil
}

func (s *Store) GetActorDetails(ctx context.Context, roomID string) ([]types.Actor, error) {
	var recs []accountRecord
	err := s.db.WithContext(ctx).
		Model(&accountRecord{}).
		Joins("JOIN participants ON participants.user_id = accounts.id").
		Where("participants.room_id = ?", roomID).
		Order("accounts.id").
		Find(&recs).Error
	if err != nil {
		return nil, storageError(err, "get actor details")
	}
	actors := make([]types.Actor, 0, len(recs))
	for i := range recs {
		actors = append(actors, types.Actor{
			ID:       recs[i].ID,
			Name:     recs[i].Name,
			Username: recs[i].Username,
			Details:  actorDetails(recs[i].Details.V),
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

func (s *Store) GetRoom(ctx context.Context, roomID string) (string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&roomRecord{}).Where("id = ?", roomID).Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return "", storageError(err, "get room")
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (s *Store) CreateRoom(ctx context.Context, roomID string) (string, error) {
	if roomID == "" {
		roomID = types.NewID()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&roomRecord{ID: roomID}).Error
	if err != nil {
		return "", storageError(err, "create room")
	}
	return roomID, nil
}

func (s *Store) RemoveRoom(ctx context.Context, roomID string) error {
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&participantRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", roomID).Delete(&roomRecord{}).Error
	})
	return storageError(err, "remove room")
}

func (s *Store) GetRoomsForParticipant(ctx context.Context, userID string) ([]string, error) {
	return s.GetRoomsForParticipants(ctx, []string{userID})
}

func (s *Store) GetRoomsForParticipants(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rooms []string
	err := s.db.WithContext(ctx).Model(&participantRecord{}).
		Distinct("room_id").
		Where("user_id IN ?", userIDs).
		Order("room_id").
		Pluck("room_id", &rooms).Error
	if err != nil {
		return nil, storageError(err, "get rooms for participants")
	}
	return rooms, nil
}

func (s *Store) AddParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	rec := &participantRecord{ID: participantID(roomID, userID), UserID: userID, RoomID: roomID}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, storageError(err, "add participant")
	}
	return true, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND room_id = ?", userID, roomID).Delete(&participantRecord{})
	if res.Error != nil {
		return false, storageError(res.Error, "remove participant")
	}
	return res.RowsAffected > 0, nil
}

// participantAccount 是 participants LEFT JOIN accounts 的结果行
type participantAccount struct {
	ID        string
	UserID    string
	Name      string
	Username  string
	Email     string
	AvatarURL string
	Details   jsonColumn[map[string]any]
}

func (s *Store) GetParticipantsForAccount(ctx context.Context, userID string) ([]types.Participant, error) {
	var rows []participantAccount
	err := s.db.WithContext(ctx).
		Table("participants").
		Select("participants.id, participants.user_id, " +
			"COALESCE(accounts.name, '') AS name, COALESCE(accounts.username, '') AS username, " +
			"COALESCE(accounts.email, '') AS email, COALESCE(accounts.avatar_url, '') AS avatar_url, " +
			"accounts.details").
		Joins("LEFT JOIN accounts ON accounts.id = participants.user_id").
		Where("participants.user_id = ?", userID).
		Order("participants.id").
		Scan(&rows).Error
	if err != nil {
		return nil, storageError(err, "get participants for account")
	}
	out := make([]types.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Participant{
			ID: r.ID,
			Account: types.Account{
				ID:        r.UserID,
				Name:      r.Name,
				Username:  r.Username,
				Email:     r.Email,
				AvatarURL: r.AvatarURL,
				Details:   r.Details.V,
			},
		})
	}
	return out, nil
}

func (s *Store) GetParticipantsForRoom(ctx context.Context, roomID string) ([]string, error) {
	var users []string
	err := s.db.WithContext(ctx).Model(&participantRecord{}).
		Where("room_id = ?", roomID).
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, storageError(err, "get participants for room")
	}
	return users, nil
}

func (s *Store) GetParticipantUserState(ctx context.Context, roomID, userID string) (types.ParticipantUserState, error) {
	var states []string
	err := s.db.WithContext(ctx).Model(&participantRecord{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Limit(1).
		Pluck("user_state", &states).Error
	if err != nil {
		return types.ParticipantNone, storageError(err, "get participant state")
	}
	if len(states) == 0 {
		return types.ParticipantNone, nil
	}
	return types.ParticipantUserState(states[0]), nil
}

func (s *Store) SetParticipantUserState(ctx context.Context, roomID, userID string, state types.ParticipantUserState) error {
	res := s.db.WithContext(ctx).Model(&participantRecord{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("user_state", string(state))
	if res.Error != nil {
		return storageError(res.Error, "set participant state")
	}
	if res.RowsAffected == 0 {
		// mysql 在值未变化时也返回 0 行，需要再确认一次
		found, err := exists(s.db.WithContext(ctx), &participantRecord{}, map[string]any{"room_id": roomID, "user_id": userID})
		if err != nil {
			return storageError(err, "set participant state")
		}
		if !found {
			return types.NewError(types.ErrNotFound, "participant "+userID+" is not in room "+roomID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func (s *Store) GetCache(ctx context.Context, key, agentID string) (string, bool, error) {
	var recs []cacheRecord
	err := s.db.WithContext(ctx).
		Where(map[string]any{"key": key, "agent_id": agentID}).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return "", false, storageError(err, "get cache")
	}
	if len(recs) == 0 {
		return "", false, nil
	}
	return recs[0].Value, true, nil
}

func (s *Store) SetCache(ctx context.Context, key, agentID, value string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&cacheRecord{Key: key, AgentID: agentID, Value: value}).Error
	return storageError(err, "set cache")
}

func (s *Store) DeleteCache(ctx context.Context, key, agentID string) error {
	err := s.db.WithContext(ctx).
		Where(map[string]any{"key": key, "agent_id": agentID}).
		Delete(&cacheRecord{}).Error
	return storageError(err, "delete cache")
}
