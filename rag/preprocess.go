package rag

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// 预处理规则按顺序执行
var preprocessRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), ""},                          // 代码块
	{regexp.MustCompile("`.*?`"), ""},                                  // 行内代码
	{regexp.MustCompile(`#{1,6}\s*(.*)`), "$1"},                        // 标题
	{regexp.MustCompile(`!\[(.*?)\]\(.*?\)`), "$1"},                    // 图片
	{regexp.MustCompile(`\[(.*?)\]\(.*?\)`), "$1"},                     // 链接
	{regexp.MustCompile(`(https?://)?(www\.)?([^\s]+\.[^\s]+)`), "$3"}, // URL 只保留主机与路径
	{regexp.MustCompile(`<@[!&]?\d+>`), ""},                            // 提及
	{regexp.MustCompile(`<[^>]*>`), ""},                                // HTML 标签
	{regexp.MustCompile(`(?m)^\s*[-*_]{3,}\s*$`), ""},                  // 分隔线
	{regexp.MustCompile(`(?s)/\*.*?\*/`), ""},                          // 块注释
	{regexp.MustCompile(`//.*`), ""},                                   // 行注释
	{regexp.MustCompile(`\s+`), " "},                                   // 空白
	{regexp.MustCompile(`[^\p{L}\p{N}\s\-_./:?=&]`), ""},               // 其余符号
}

// Preprocess 去掉 Markdown、HTML、代码与注释，合并空白并转小写。
// 索引与查询使用同一规则，保证两侧文本可比。
func Preprocess(content string) string {
	if content == "" {
		return ""
	}
	for _, r := range preprocessRules {
		content = r.re.ReplaceAllString(content, r.repl)
	}
	return strings.ToLower(strings.TrimSpace(content))
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "does", "for", "from",
		"had", "has", "have", "he", "her", "his", "how", "hey", "i", "in", "is",
		"it", "its", "of", "on", "or", "that", "the", "this", "to", "was", "what",
		"when", "where", "which", "who", "will", "with", "would", "there",
		"their", "they", "your", "you",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// minTermLength 更短的词不参与重排
const minTermLength = 3

// QueryTerms 返回参与重排的查询词：去掉停用词与过短的词，保留首次出现顺序并去重
func QueryTerms(query string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) < minTermLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// proximityWindow 两个匹配词相距不超过该词数时视为邻近
const proximityWindow = 5

// hasProximityMatch 报告至少两个词在 text 中首次出现的位置相距不超过 proximityWindow
func hasProximityMatch(text string, terms []string) bool {
	if len(terms) < 2 {
		return false
	}
	words := strings.Fields(strings.ToLower(text))
	positions := make([]int, 0, len(terms))
	for _, term := range terms {
		for i, w := range words {
			if strings.Contains(w, term) {
				positions = append(positions, i)
				break
			}
		}
	}
	if len(positions) < 2 {
		return false
	}
	sort.Ints(positions)
	for i := 1; i < len(positions); i++ {
		if positions[i]-positions[i-1] <= proximityWindow {
			return true
		}
	}
	return false
}
