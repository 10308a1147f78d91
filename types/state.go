package types

// State is the prompt context assembled for one generation call.
// It is owned by the caller that built it and never persisted.
type State struct {
	AgentID    string
	RoomID     string
	UserID     string
	AgentName  string
	SenderName string

	Bio       string
	Lore      string
	System    string
	Topic     string
	Topics    string
	Adjective string
	Knowledge string

	KnowledgeData    []KnowledgeItem
	RAGKnowledgeData []RAGKnowledgeItem

	CharacterPostExamples    string
	CharacterMessageExamples string
	MessageDirections        string
	PostDirections           string

	Actors     string
	ActorsData []Actor
	Goals      string
	GoalsData  []Goal

	RecentMessages     string
	RecentPosts        string
	RecentMessagesData []Memory

	RecentInteractions        string
	RecentInteractionsData    []Memory
	RecentMessageInteractions string
	RecentPostInteractions    string

	ActionNames    string
	Actions        string
	ActionExamples string
	// ActionsData names the actions whose Validate passed for this message.
	ActionsData []string

	Evaluators        string
	EvaluatorNames    string
	EvaluatorExamples string
	// EvaluatorsData names the evaluators whose Validate passed for this message.
	EvaluatorsData []string

	Providers   string
	Attachments string

	// Extra carries caller supplied keys; they win over computed fields on lookup.
	Extra map[string]any
}

// Values flattens the state into the key space used by prompt templates.
func (s *State) Values() map[string]any {
	v := map[string]any{
		"agentId":                   s.AgentID,
		"roomId":                    s.RoomID,
		"userId":                    s.UserID,
		"agentName":                 s.AgentName,
		"senderName":                s.SenderName,
		"bio":                       s.Bio,
		"lore":                      s.Lore,
		"system":                    s.System,
		"topic":                     s.Topic,
		"topics":                    s.Topics,
		"adjective":                 s.Adjective,
		"knowledge":                 s.Knowledge,
		"characterPostExamples":     s.CharacterPostExamples,
		"characterMessageExamples":  s.CharacterMessageExamples,
		"messageDirections":         s.MessageDirections,
		"postDirections":            s.PostDirections,
		"actors":                    s.Actors,
		"goals":                     s.Goals,
		"recentMessages":            s.RecentMessages,
		"recentPosts":               s.RecentPosts,
		"recentInteractions":        s.RecentInteractions,
		"recentMessageInteractions": s.RecentMessageInteractions,
		"recentPostInteractions":    s.RecentPostInteractions,
		"actionNames":               s.ActionNames,
		"actions":                   s.Actions,
		"actionExamples":            s.ActionExamples,
		"evaluators":                s.Evaluators,
		"evaluatorNames":            s.EvaluatorNames,
		"evaluatorExamples":         s.EvaluatorExamples,
		"providers":                 s.Providers,
		"attachments":               s.Attachments,
	}
	for k, val := range s.Extra {
		v[k] = val
	}
	return v
}
