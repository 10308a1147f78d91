package types

// Account is a user or agent identity.
type Account struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Username  string         `json:"username"`
	Email     string         `json:"email,omitempty"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ActorDetails is the short profile rendered into prompts.
type ActorDetails struct {
	Tagline string `json:"tagline"`
	Summary string `json:"summary"`
	Quote   string `json:"quote"`
}

// Actor is an account as seen from inside a room.
type Actor struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Username string       `json:"username"`
	Details  ActorDetails `json:"details"`
}

// Participant links an account to a room.
type Participant struct {
	ID      string  `json:"id"`
	Account Account `json:"account"`
}

// Room is a conversation container.
type Room struct {
	ID string `json:"id"`
}

// ParticipantUserState is the follow/mute preference of a participant.
type ParticipantUserState string

const (
	ParticipantNone     ParticipantUserState = ""
	ParticipantFollowed ParticipantUserState = "FOLLOWED"
	ParticipantMuted    ParticipantUserState = "MUTED"
)
