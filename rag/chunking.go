package rag

// 默认分块参数（字符数）
const (
	DefaultChunkSize = 512
	DefaultBleed     = 20
)

// SplitChunks 以滑动窗口切分 content，按 rune 计数。
// bleed 为相邻分块的重叠长度，限制在 [0, chunkSize/4]；窗口步长为 max(1, chunkSize-bleed)。
// 最后一个窗口到达末尾后停止，因此不会产生完全被前一块覆盖的尾块。
func SplitChunks(content string, chunkSize, bleed int) []string {
	if content == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	bleed = clampBleed(chunkSize, bleed)
	step := chunkSize - bleed
	if step < 1 {
		step = 1
	}

	runes := []rune(content)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func clampBleed(chunkSize, bleed int) int {
	if bleed < 0 {
		return 0
	}
	if limit := chunkSize / 4; bleed > limit {
		return limit
	}
	return bleed
}
