package continuity

import "testing"

// 典型续接场景：持久化尾部 [3.4 1.1 5.6 2.0] 出现在观测窗口开头，
// 后面的 [7.8 1.5] 是断线期间错过的新回合
func TestFindAlignmentTypicalResume(t *testing.T) {
	persisted := []float64{1.2, 3.4, 1.1, 5.6, 2.0}
	observed := []float64{3.4, 1.1, 5.6, 2.0, 7.8, 1.5}

	align, ok := FindAlignment(persisted, observed, 3, 0.01)
	if !ok {
		t.Fatal("期望找到对齐")
	}
	if align.Length != 4 || align.Position != 0 {
		t.Fatalf("期望 L=4 pos=0，实际 L=%d pos=%d", align.Length, align.Position)
	}
}

// 更长的命中优先于更短的命中
func TestFindAlignmentPrefersLongerMatch(t *testing.T) {
	persisted := []float64{2.0, 3.0, 2.0, 3.0}
	// pos=0 只能命中 [2.0 3.0]（L=2），pos=2 能命中 [3.0 2.0 3.0]（L=3）
	observed := []float64{2.0, 3.0, 9.0, 3.0, 2.0, 3.0}

	align, ok := FindAlignment(persisted, observed, 2, 0.01)
	if !ok {
		t.Fatal("期望找到对齐")
	}
	if align.Length != 3 {
		t.Fatalf("期望优先命中更长的 L=3，实际 L=%d", align.Length)
	}
	if align.Position != 3 {
		t.Fatalf("期望 pos=3，实际 pos=%d", align.Position)
	}
}

// 同长度命中取最靠前的位置
func TestFindAlignmentTieBreakEarliestPosition(t *testing.T) {
	persisted := []float64{1.5, 1.5}
	observed := []float64{1.5, 1.5, 9.9, 1.5, 1.5}

	align, ok := FindAlignment(persisted, observed, 2, 0.01)
	if !ok {
		t.Fatal("期望找到对齐")
	}
	if align.Length != 2 || align.Position != 0 {
		t.Fatalf("期望 L=2 pos=0，实际 L=%d pos=%d", align.Length, align.Position)
	}
}

// 容差内的数值差异视为相等
func TestFindAlignmentTolerance(t *testing.T) {
	persisted := []float64{1.23, 4.56, 7.89}
	observed := []float64{1.234, 4.556, 7.894}

	if _, ok := FindAlignment(persisted, observed, 3, 0.01); !ok {
		t.Fatal("容差 0.01 内应该命中")
	}
	if _, ok := FindAlignment(persisted, observed, 3, 0.001); ok {
		t.Fatal("容差 0.001 不应该命中")
	}
}

// 低于最短匹配长度时不算对齐
func TestFindAlignmentRespectsMinLength(t *testing.T) {
	persisted := []float64{8.8, 2.2}
	observed := []float64{2.2, 5.0, 6.0, 7.0, 9.0}

	if _, ok := FindAlignment(persisted, observed, 2, 0.01); ok {
		t.Fatal("只有单元素命中，不应满足 minLen=2")
	}
	align, ok := FindAlignment(persisted, observed, 1, 0.01)
	if !ok || align.Length != 1 || align.Position != 0 {
		t.Fatalf("minLen=1 时应命中 L=1 pos=0，实际 ok=%v %+v", ok, align)
	}
}

func TestFindAlignmentNoMatch(t *testing.T) {
	persisted := []float64{1.0, 2.0, 3.0}
	observed := []float64{4.0, 5.0, 6.0}

	if _, ok := FindAlignment(persisted, observed, 2, 0.01); ok {
		t.Fatal("完全不同的序列不应命中")
	}
}

func TestFindAlignmentEmptyInputs(t *testing.T) {
	if _, ok := FindAlignment(nil, []float64{1.0}, 1, 0.01); ok {
		t.Fatal("空持久化窗口不应命中")
	}
	if _, ok := FindAlignment([]float64{1.0}, nil, 1, 0.01); ok {
		t.Fatal("空观测窗口不应命中")
	}
}
