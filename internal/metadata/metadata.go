// Package metadata 定义流水线依赖的三个外部协作者：预览提取、评分读取、评分写入。
//
// 核心流程只依赖这些接口；具体实现（exiftool 进程、原生 JPG 解析）在 infra 下。
package metadata

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_metadata.go -package=mocks github.com/John-Robertt/cullhelper/internal/metadata PreviewExtractor,Reader,Writer

import "context"

// Metadata 是 Reader 的返回值。Rating 为 nil 表示文件中没有评分字段。
type Metadata struct {
	Rating *int
}

// PreviewExtractor 从 RAW 中提取内嵌预览并写到 jpgPath。
// 失败时实现不需要清理 jpgPath，调用方负责。
type PreviewExtractor interface {
	ExtractPreview(ctx context.Context, rawPath, jpgPath string) error
}

// Reader 读取文件中的评分字段。
type Reader interface {
	ReadMetadata(ctx context.Context, path string) (Metadata, error)
}

// Writer 把评分写入文件（原地覆盖，不保留备份）。
type Writer interface {
	WriteRating(ctx context.Context, path string, rating int) error
}

// RatingPtr 便于构造 Metadata{Rating: ...}。
func RatingPtr(v int) *int { return &v }
