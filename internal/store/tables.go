package store

import (
	"fmt"
	"path/filepath"

	"github.com/John-Robertt/cullhelper/internal/domain"
	"github.com/John-Robertt/cullhelper/internal/workspace"
)

// Mapping 是 JPG 相对路径 -> RAW 绝对路径的有序表。key 唯一，查找是精确匹配。
type Mapping struct {
	entries []domain.MappingEntry
	index   map[string]int
}

// NewMapping 校验并构造 Mapping：
// - JPG key 必须形如 "./<N>/<name>.jpg" 且唯一
// - RAW 必须是绝对路径
func NewMapping(entries []domain.MappingEntry) (Mapping, error) {
	m := Mapping{
		entries: make([]domain.MappingEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := m.add(e); err != nil {
			return Mapping{}, err
		}
	}
	return m, nil
}

func (m *Mapping) add(e domain.MappingEntry) error {
	if _, _, err := workspace.ParsePreviewRel(e.JPG); err != nil {
		return err
	}
	if e.Raw == "" || !filepath.IsAbs(e.Raw) {
		return fmt.Errorf("RAW 路径必须是绝对路径：%q -> %q", e.JPG, e.Raw)
	}
	if _, ok := m.index[e.JPG]; ok {
		return fmt.Errorf("重复的 JPG key：%q", e.JPG)
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[e.JPG] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

// Add 追加一条映射（prepare 使用）。
func (m *Mapping) Add(jpg, raw string) error {
	return m.add(domain.MappingEntry{JPG: jpg, Raw: raw})
}

// Lookup 按 JPG key 精确查找 RAW。
func (m Mapping) Lookup(jpg string) (string, bool) {
	i, ok := m.index[jpg]
	if !ok {
		return "", false
	}
	return m.entries[i].Raw, true
}

func (m Mapping) Len() int { return len(m.entries) }

// Entries 返回条目副本（按插入顺序）。
func (m Mapping) Entries() []domain.MappingEntry {
	return append([]domain.MappingEntry{}, m.entries...)
}

// Ratings 是 JPG 相对路径 -> 评分的有序表。
type Ratings struct {
	entries []domain.RatingEntry
	index   map[string]int
}

func NewRatings(entries []domain.RatingEntry) (Ratings, error) {
	r := Ratings{
		entries: make([]domain.RatingEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := r.add(e); err != nil {
			return Ratings{}, err
		}
	}
	return r, nil
}

func (r *Ratings) add(e domain.RatingEntry) error {
	if _, _, err := workspace.ParsePreviewRel(e.JPG); err != nil {
		return err
	}
	if e.Rating < 0 {
		return fmt.Errorf("评分不能为负数：%q = %d", e.JPG, e.Rating)
	}
	if _, ok := r.index[e.JPG]; ok {
		return fmt.Errorf("重复的 JPG key：%q", e.JPG)
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[e.JPG] = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

// Set 追加一条评分（extract 使用）。
func (r *Ratings) Set(jpg string, rating int) error {
	return r.add(domain.RatingEntry{JPG: jpg, Rating: rating})
}

func (r Ratings) Get(jpg string) (int, bool) {
	i, ok := r.index[jpg]
	if !ok {
		return 0, false
	}
	return r.entries[i].Rating, true
}

func (r Ratings) Len() int { return len(r.entries) }

func (r Ratings) Entries() []domain.RatingEntry {
	return append([]domain.RatingEntry{}, r.entries...)
}

// CheckSubsetOf 校验不变量：ratings 的每个 key 都必须出现在 mapping 中。
func (r Ratings) CheckSubsetOf(m Mapping) error {
	for _, e := range r.entries {
		if _, ok := m.Lookup(e.JPG); !ok {
			return fmt.Errorf("ratings 中的 %q 不在 mapping 中", e.JPG)
		}
	}
	return nil
}
