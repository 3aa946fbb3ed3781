package continuity

import "math"

// Alignment 对齐结果：观测窗口中与持久化尾部命中的切片
type Alignment struct {
	Length   int // 命中长度 L
	Position int // 命中切片在观测窗口中的起始下标
}

// FindAlignment 在观测窗口 observed 中寻找与持久化尾部 persisted 的对齐
//
// 搜索顺序决定了裁决规则：先按长度 L 从 min(len(persisted), len(observed))
// 递减到 minLen，同一长度内从观测窗口起始下标 0 往后扫——更长的命中
// 永远优先于更短的命中（更长意味着更强的续接证据），同长度内最靠前的
// 位置优先。逐元素比对使用绝对容差 tol。
//
// 纯函数，无副作用，便于用字面量数组直接单测。
func FindAlignment(persisted, observed []float64, minLen int, tol float64) (Alignment, bool) {
	if minLen <= 0 {
		minLen = 1
	}
	maxLen := len(persisted)
	if len(observed) < maxLen {
		maxLen = len(observed)
	}

	for l := maxLen; l >= minLen; l-- {
		// 取持久化窗口的最后 l 个
		tail := persisted[len(persisted)-l:]
		for pos := 0; pos+l <= len(observed); pos++ {
			if slicesMatch(tail, observed[pos:pos+l], tol) {
				return Alignment{Length: l, Position: pos}, true
			}
		}
	}
	return Alignment{}, false
}

func slicesMatch(a, b []float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
