package ranking

import (
	"fmt"
	"math"
)

// CosineSimilarity 计算两个向量的余弦相似度，结果限制在[-1, 1]
// 任一向量为零向量时返回0
func CosineSimilarity(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(v1), len(v2))
	}

	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 0, nil
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	// 处理浮点精度问题
	return math.Max(-1, math.Min(1, similarity)), nil
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float64 {
	var dot float64
	for i := range v1 {
		dot += float64(v1[i]) * float64(v2[i])
	}
	return dot
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
