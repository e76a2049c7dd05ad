// Package store 负责工作目录中两张状态表（mapping.json / ratings.json）的读写。
//
// 两张表都是整表读、内存修改、阶段结束时整表原子覆盖；没有增量追加。
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/domain"
	"github.com/John-Robertt/cullhelper/internal/infra/fsx"
	"github.com/John-Robertt/cullhelper/internal/workspace"
)

// SchemaVersion 是当前落盘格式的版本号。
const SchemaVersion = 1

const (
	kindMapping = "mapping"
	kindRatings = "ratings"
)

// ErrNotFound 表示状态文件不存在（前置阶段尚未运行）。
var ErrNotFound = errors.New("store: not found")

// Store 提供 <root>/culling-helper/ 下状态文件的读写。
type Store struct {
	ws workspace.Workspace
}

func New(ws workspace.Workspace) Store {
	return Store{ws: ws}
}

type mappingDoc struct {
	Version int                   `json:"version"`
	Kind    string                `json:"kind"`
	Entries []domain.MappingEntry `json:"entries"`
}

type ratingsDoc struct {
	Version int                  `json:"version"`
	Kind    string               `json:"kind"`
	Entries []domain.RatingEntry `json:"entries"`
}

// LoadMapping 读取 mapping.json；文件不存在时返回 missing_state_file（包裹 ErrNotFound）。
// 旧版（扁平 JSON 对象）会被迁移为有序条目。
func (s Store) LoadMapping() (Mapping, error) {
	path := s.ws.MappingPath()
	raw, err := s.read(path)
	if err != nil {
		return Mapping{}, err
	}

	var entries []domain.MappingEntry
	legacy, isLegacy, err := legacyObject(raw)
	if err != nil {
		return Mapping{}, invalid(path, err)
	}
	if isLegacy {
		entries = make([]domain.MappingEntry, 0, len(legacy))
		for _, k := range sortedKeys(legacy) {
			var v string
			if err := json.Unmarshal(legacy[k], &v); err != nil {
				return Mapping{}, invalid(path, fmt.Errorf("旧版 mapping 的值必须是字符串：%q", k))
			}
			entries = append(entries, domain.MappingEntry{JPG: k, Raw: v})
		}
	} else {
		var doc mappingDoc
		if err := decodeStrict(raw, &doc); err != nil {
			return Mapping{}, invalid(path, err)
		}
		if err := checkHeader(doc.Version, doc.Kind, kindMapping); err != nil {
			return Mapping{}, invalid(path, err)
		}
		entries = doc.Entries
	}

	m, err := NewMapping(entries)
	if err != nil {
		return Mapping{}, invalid(path, err)
	}
	return m, nil
}

// SaveMapping 整表覆盖写入 mapping.json，条目顺序即写入顺序。
func (s Store) SaveMapping(m Mapping) error {
	doc := mappingDoc{
		Version: SchemaVersion,
		Kind:    kindMapping,
		Entries: m.Entries(),
	}
	return s.write(workspace.MappingFile, doc)
}

// LoadRatings 读取 ratings.json；文件不存在时返回 missing_state_file（包裹 ErrNotFound）。
func (s Store) LoadRatings() (Ratings, error) {
	path := s.ws.RatingPath()
	raw, err := s.read(path)
	if err != nil {
		return Ratings{}, err
	}

	var entries []domain.RatingEntry
	legacy, isLegacy, err := legacyObject(raw)
	if err != nil {
		return Ratings{}, invalid(path, err)
	}
	if isLegacy {
		entries = make([]domain.RatingEntry, 0, len(legacy))
		for _, k := range sortedKeys(legacy) {
			// 旧版里未评分的 JPG 可能是 null：按默认 0 处理。
			var v *int
			if err := json.Unmarshal(legacy[k], &v); err != nil {
				return Ratings{}, invalid(path, fmt.Errorf("旧版 ratings 的值必须是整数：%q", k))
			}
			r := 0
			if v != nil {
				r = *v
			}
			entries = append(entries, domain.RatingEntry{JPG: k, Rating: r})
		}
	} else {
		var doc ratingsDoc
		if err := decodeStrict(raw, &doc); err != nil {
			return Ratings{}, invalid(path, err)
		}
		if err := checkHeader(doc.Version, doc.Kind, kindRatings); err != nil {
			return Ratings{}, invalid(path, err)
		}
		entries = doc.Entries
	}

	r, err := NewRatings(entries)
	if err != nil {
		return Ratings{}, invalid(path, err)
	}
	return r, nil
}

// SaveRatings 整表覆盖写入 ratings.json。
func (s Store) SaveRatings(r Ratings) error {
	doc := ratingsDoc{
		Version: SchemaVersion,
		Kind:    kindRatings,
		Entries: r.Entries(),
	}
	return s.write(workspace.RatingFile, doc)
}

// SaveReport 覆盖写入 report.json（最近一次阶段的报告）。
func (s Store) SaveReport(rr domain.PhaseReport) error {
	return s.write(workspace.ReportFile, rr)
}

func (s Store) read(path string) ([]byte, error) {
	b, err := afero.ReadFile(s.ws.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.Error{Code: domain.ErrCodeMissingState, Path: path, Err: ErrNotFound}
		}
		return nil, &domain.Error{Code: domain.ErrCodeIOFailed, Path: path, Err: err}
	}
	return b, nil
}

func (s Store) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomicReplace(s.ws.Fs, s.ws.Dir, name, b); err != nil {
		return &domain.Error{Code: domain.ErrCodeIOFailed, Path: filepath.Join(s.ws.Dir, name), Err: err}
	}
	return nil
}

func invalid(path string, err error) error {
	return &domain.Error{Code: domain.ErrCodeStateInvalid, Path: path, Err: err}
}

func checkHeader(version int, kind, want string) error {
	if version != SchemaVersion {
		return fmt.Errorf("不支持的 version：%d（期望 %d）", version, SchemaVersion)
	}
	if kind != want {
		return fmt.Errorf("kind 不匹配：%q（期望 %q）", kind, want)
	}
	return nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("JSON 之后存在多余内容")
	}
	return nil
}

// legacyObject 判断 raw 是否是旧版的扁平对象（没有 version 字段）。
// 顶层不是对象时直接报错。
func legacyObject(raw []byte) (map[string]json.RawMessage, bool, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false, fmt.Errorf("顶层必须是 JSON 对象：%w", err)
	}
	if obj == nil {
		return nil, false, errors.New("顶层必须是 JSON 对象")
	}
	if _, ok := obj["version"]; ok {
		return nil, false, nil
	}
	return obj, true, nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
