package template

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/BaSui01/agentruntime/types"
)

// 模板名称，与角色文件 templates 中的键一致
const (
	MessageHandler = "messageHandlerTemplate"
	ShouldRespond  = "shouldRespondTemplate"
	Evaluation     = "evaluationTemplate"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ComposeContext 用 state 中的值替换模板里的 {{key}}，未知的键替换为空字符串。
// 替换只做一遍，值里出现的 {{key}} 原样保留。
func ComposeContext(state *types.State, tmpl string) string {
	if state == nil {
		return placeholder.ReplaceAllString(tmpl, "")
	}
	values := state.Values()
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		v, ok := values[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	})
}

// Get 返回角色覆盖的模板，没有覆盖时返回内置默认值
func Get(character *types.Character, name string) string {
	if override := character.Template(name); override != "" {
		return override
	}
	return defaults[name]
}

// AddHeader 在非空内容前加标题，内容为空时返回空字符串
func AddHeader(header, body string) string {
	if body == "" {
		return ""
	}
	if header == "" {
		return body + "\n"
	}
	return header + "\n" + body + "\n"
}

// RandomNames 从名字表中随机取 n 个名字
func RandomNames(rng *rand.Rand, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = names[rng.IntN(len(names))]
	}
	return out
}

// ReplaceUsers 把 {{user1}}..{{userN}} 替换为给定的名字
func ReplaceUsers(text string, names []string) string {
	for i, name := range names {
		text = strings.ReplaceAll(text, fmt.Sprintf("{{user%d}}", i+1), name)
	}
	return text
}

// ComposeRandomUser 用 n 个随机名字替换模板中的 {{userN}}
func ComposeRandomUser(rng *rand.Rand, tmpl string, n int) string {
	return ReplaceUsers(tmpl, RandomNames(rng, n))
}
