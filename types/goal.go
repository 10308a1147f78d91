package types

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "IN_PROGRESS"
	GoalDone       GoalStatus = "DONE"
	GoalFailed     GoalStatus = "FAILED"
)

// Objective is a single step of a goal.
type Objective struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Goal is a tracked objective list scoped to a room.
type Goal struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	UserID     string      `json:"userId,omitempty"`
	Name       string      `json:"name"`
	Status     GoalStatus  `json:"status"`
	Objectives []Objective `json:"objectives"`
}
