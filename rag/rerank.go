package rag

import (
	"sort"
	"strings"

	"github.com/BaSui01/agentruntime/types"
)

// 重排系数
const (
	termBoostFactor = 2.0
	proximityBoost  = 1.5
	noMatchPenalty  = 0.3
)

// Rerank 在向量相似度之上按查询词重新打分：
// 命中词越多得分越高，命中词彼此邻近再乘 1.5，
// 一个词都没命中且没有对话上下文时乘 0.3。
// 结果按 Score 降序，过滤掉低于 threshold 的条目并截断到 limit。
func Rerank(items []*types.RAGKnowledgeItem, terms []string, hasContext bool, threshold float64, limit int) []*types.RAGKnowledgeItem {
	scored := make([]*types.RAGKnowledgeItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		c := *item
		c.Score = score(c.Similarity, c.Content.Text, terms, hasContext)
		scored = append(scored, &c)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	out := scored[:0]
	for _, item := range scored {
		if item.Score >= threshold {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func score(similarity float64, text string, terms []string, hasContext bool) float64 {
	lower := strings.ToLower(text)
	var matched []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}

	s := similarity
	if len(matched) > 0 {
		s *= 1 + float64(len(matched))/float64(len(terms))*termBoostFactor
		if hasProximityMatch(lower, matched) {
			s *= proximityBoost
		}
	} else if !hasContext {
		s *= noMatchPenalty
	}
	return s
}
