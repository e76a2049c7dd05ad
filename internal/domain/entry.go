package domain

// MappingEntry 把派生 JPG（相对工作目录，形如 "./3/IMG_0001.jpg"）映射回源 RAW（绝对路径）。
// 由 prepare 创建，之后不再修改。
type MappingEntry struct {
	JPG string `json:"jpg"`
	Raw string `json:"raw"`
}

// RatingEntry 是 extract 从某个 JPG 读到的评分（未评分记为 0）。
type RatingEntry struct {
	JPG    string `json:"jpg"`
	Rating int    `json:"rating"`
}

// Assignment 是 planner 对单个 RAW 的处理结果。
type Assignment struct {
	Raw   RawFile
	Batch int
	JPG   string // 相对工作目录
	Size  int64  // 预览 JPG 字节数
	// Reused 表示预览在之前的运行中已生成，本次没有重新提取。
	Reused bool
}
