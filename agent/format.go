package agent

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/agent/template"
	"github.com/BaSui01/agentruntime/types"
)

// =============================================================================
// 消息与帖子
// =============================================================================

// FormatTimestamp 把毫秒时间戳格式化为相对时间，例如 "just now"、"5 minutes ago"
func FormatTimestamp(createdAt int64) string {
	return formatTimestampAt(createdAt, time.Now())
}

func formatTimestampAt(createdAt int64, now time.Time) string {
	diff := now.UnixMilli() - createdAt
	if diff < 0 {
		diff = -diff
	}
	if diff < 60_000 {
		return "just now"
	}
	minutes := diff / 60_000
	hours := minutes / 60
	days := hours / 24
	switch {
	case minutes < 60:
		return plural(minutes, "minute")
	case hours < 24:
		return plural(hours, "hour")
	default:
		return plural(days, "day")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func actorByID(actors []types.Actor, id string) (types.Actor, bool) {
	for _, a := range actors {
		if a.ID == id {
			return a, true
		}
	}
	return types.Actor{}, false
}

func shortID(id string) string {
	if len(id) <= 5 {
		return id
	}
	return id[len(id)-5:]
}

// FormatMessages 把按时间倒序的消息渲染为按时间正序的对话记录，每行一条：
//
//	(5 minutes ago) [ab123] Alice: hello (Attachments: [id - title (url)]) (ACTION)
func FormatMessages(messages []types.Memory, actors []types.Actor) string {
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.UserID == "" {
			continue
		}
		name := "Unknown User"
		if a, ok := actorByID(actors, m.UserID); ok {
			name = a.Name
		}

		var b strings.Builder
		fmt.Fprintf(&b, "(%s) [%s] %s: %s", FormatTimestamp(m.CreatedAt), shortID(m.UserID), name, m.Content.Text)
		if len(m.Content.Attachments) > 0 {
			refs := make([]string, len(m.Content.Attachments))
			for j, media := range m.Content.Attachments {
				refs[j] = fmt.Sprintf("[%s - %s (%s)]", media.ID, media.Title, media.URL)
			}
			fmt.Fprintf(&b, " (Attachments: %s)", strings.Join(refs, ", "))
		}
		if action := m.Content.Action; action != "" && action != "null" {
			fmt.Fprintf(&b, " (%s)", action)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// FormatPosts 按房间分组渲染帖子：房间内按时间正序，房间之间按最新一条倒序。
func FormatPosts(messages []types.Memory, actors []types.Actor, conversationHeader bool) string {
	rooms := make(map[string][]types.Memory)
	var order []string
	for _, m := range messages {
		if m.RoomID == "" {
			continue
		}
		if _, ok := rooms[m.RoomID]; !ok {
			order = append(order, m.RoomID)
		}
		rooms[m.RoomID] = append(rooms[m.RoomID], m)
	}
	for _, id := range order {
		msgs := rooms[id]
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
	}
	newest := func(id string) int64 {
		msgs := rooms[id]
		return msgs[len(msgs)-1].CreatedAt
	}
	sort.SliceStable(order, func(i, j int) bool { return newest(order[i]) > newest(order[j]) })

	threads := make([]string, 0, len(order))
	for _, roomID := range order {
		var posts []string
		for _, m := range rooms[roomID] {
			if m.UserID == "" {
				continue
			}
			name, username := "Unknown User", "unknown"
			if a, ok := actorByID(actors, m.UserID); ok {
				name, username = a.Name, a.Username
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Name: %s (@%s)\nID: %s", name, username, m.ID)
			if m.Content.InReplyTo != "" {
				fmt.Fprintf(&b, "\nIn reply to: %s", m.Content.InReplyTo)
			}
			fmt.Fprintf(&b, "\nDate: %s\nText:\n%s", FormatTimestamp(m.CreatedAt), m.Content.Text)
			posts = append(posts, b.String())
		}
		header := ""
		if conversationHeader {
			header = fmt.Sprintf("Conversation: %s\n", shortID(roomID))
		}
		threads = append(threads, header+strings.Join(posts, "\n\n"))
	}
	return strings.Join(threads, "\n\n")
}

// FormatActors 渲染房间成员：名字、tagline 与简介
func FormatActors(actors []types.Actor) string {
	lines := make([]string, len(actors))
	for i, a := range actors {
		line := a.Name
		if a.Details.Tagline != "" {
			line += ": " + a.Details.Tagline
		}
		if a.Details.Summary != "" {
			line += "\n" + a.Details.Summary
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// FormatKnowledge 把知识文本用空行分隔拼接
func FormatKnowledge(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		t = excessNewlines.ReplaceAllString(strings.TrimSpace(t), "\n\n")
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

func formatAttachments(media []types.Media) string {
	blocks := make([]string, len(media))
	for i, a := range media {
		blocks[i] = fmt.Sprintf("ID: %s\nName: %s\nURL: %s\nType: %s\nDescription: %s\nText: %s\n",
			a.ID, a.Title, a.URL, a.Source, a.Description, a.Text)
	}
	return strings.Join(blocks, "\n")
}

// =============================================================================
// 动作与评估器
// =============================================================================

func formatActionNames(actions []Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func formatActions(actions []Action) string {
	lines := make([]string, len(actions))
	for i, a := range actions {
		lines[i] = a.Name + ": " + a.Description
	}
	return strings.Join(lines, ",\n")
}

func formatExampleMessage(ex ActionExample, names []string) string {
	line := template.ReplaceUsers(fmt.Sprintf("%s: %s", ex.User, ex.Content.Text), names)
	if ex.Content.Action != "" {
		line += fmt.Sprintf(" (%s)", ex.Content.Action)
	}
	return line
}

// composeActionExamples 轮流从每个动作中随机抽取示例对话，最多 count 段
func composeActionExamples(rng *rand.Rand, actions []Action, count int) string {
	pools := make([][][]ActionExample, 0, len(actions))
	for _, a := range actions {
		if len(a.Examples) > 0 {
			pools = append(pools, append([][]ActionExample(nil), a.Examples...))
		}
	}

	var picked [][]ActionExample
	for i := 0; len(picked) < count && len(pools) > 0; i++ {
		idx := i % len(pools)
		pool := pools[idx]
		n := rng.IntN(len(pool))
		picked = append(picked, pool[n])
		pool = append(pool[:n], pool[n+1:]...)
		if len(pool) == 0 {
			pools = append(pools[:idx], pools[idx+1:]...)
		} else {
			pools[idx] = pool
		}
	}

	blocks := make([]string, len(picked))
	for i, convo := range picked {
		names := template.RandomNames(rng, 5)
		lines := make([]string, len(convo))
		for j, ex := range convo {
			lines[j] = formatExampleMessage(ex, names)
		}
		blocks[i] = "\n" + strings.Join(lines, "\n")
	}
	return strings.Join(blocks, "\n")
}

func formatEvaluatorNames(evaluators []Evaluator) string {
	names := make([]string, len(evaluators))
	for i, e := range evaluators {
		names[i] = "'" + e.Name + "'"
	}
	return strings.Join(names, ",\n")
}

func formatEvaluators(evaluators []Evaluator) string {
	lines := make([]string, len(evaluators))
	for i, e := range evaluators {
		lines[i] = fmt.Sprintf("'%s: %s'", e.Name, e.Description)
	}
	return strings.Join(lines, ",\n")
}

func formatEvaluatorExamples(rng *rand.Rand, evaluators []Evaluator) string {
	var blocks []string
	for _, e := range evaluators {
		for _, ex := range e.Examples {
			names := template.RandomNames(rng, 5)
			msgs := make([]string, len(ex.Messages))
			for i, m := range ex.Messages {
				msgs[i] = formatExampleMessage(m, names)
			}
			blocks = append(blocks, fmt.Sprintf("Context:\n%s\n\nMessages:\n%s\n\nOutcome:\n%s",
				template.ReplaceUsers(ex.Context, names),
				strings.Join(msgs, "\n"),
				template.ReplaceUsers(ex.Outcome, names)))
		}
	}
	return strings.Join(blocks, "\n\n")
}
