package metadata

import (
	"fmt"
	"strings"
)

// Registry 是评分读取后端的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Reader
}

// NamedReader 绑定一个后端名字，例如 "exiftool" / "native"。
type NamedReader struct {
	Name   string
	Reader Reader
}

func NewRegistry(readers ...NamedReader) (Registry, error) {
	byName := make(map[string]Reader, len(readers))
	for _, r := range readers {
		if r.Reader == nil {
			return Registry{}, fmt.Errorf("reader 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			return Registry{}, fmt.Errorf("reader 名称不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 reader：%q", name)
		}
		byName[name] = r.Reader
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Reader, bool) {
	if r.byName == nil {
		return nil, false
	}
	rd, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return rd, ok
}
