// Package workspace 定义工作目录 <root>/culling-helper 及其中所有路径的计算方式。
//
// 所有相对路径都显式地相对于 Workspace.Dir 解析，进程的当前目录从不改变。
package workspace

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/infra/fsx"
)

const (
	DirName     = "culling-helper"
	MappingFile = "mapping.json"
	RatingFile  = "ratings.json"
	ReportFile  = "report.json"
	PreviewExt  = ".jpg"
)

// Workspace 是一次流水线运行共享的工作目录。
type Workspace struct {
	Root string // RAW 所在目录（clean + absolute）
	Dir  string // <Root>/culling-helper
	Fs   afero.Fs
}

func New(fsys afero.Fs, root string) Workspace {
	root = filepath.Clean(root)
	return Workspace{
		Root: root,
		Dir:  filepath.Join(root, DirName),
		Fs:   fsys,
	}
}

// Ensure 幂等地创建工作目录；本工具从不删除它。
func (w Workspace) Ensure() error {
	return fsx.EnsureDir(w.Fs, w.Dir)
}

func (w Workspace) MappingPath() string { return filepath.Join(w.Dir, MappingFile) }
func (w Workspace) RatingPath() string  { return filepath.Join(w.Dir, RatingFile) }
func (w Workspace) ReportPath() string  { return filepath.Join(w.Dir, ReportFile) }

func (w Workspace) BatchDir(batch int) string {
	return filepath.Join(w.Dir, strconv.Itoa(batch))
}

// PreviewRel 返回预览在工作目录中的相对 key，例如 "./3/IMG_0001.jpg"。
// key 固定使用 '/' 分隔，保证 mapping.json 跨平台一致。
func PreviewRel(batch int, base string) string {
	return "./" + path.Join(strconv.Itoa(batch), base+PreviewExt)
}

// Abs 把相对 key 解析为绝对路径。
func (w Workspace) Abs(rel string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(strings.TrimPrefix(rel, "./")))
}

// ParsePreviewRel 校验 key 的形状（"./<N>/<name>.jpg"，N ≥ 1），返回批次号与文件名。
func ParsePreviewRel(rel string) (batch int, name string, err error) {
	if !strings.HasPrefix(rel, "./") {
		return 0, "", fmt.Errorf("预览路径必须以 ./ 开头：%q", rel)
	}
	parts := strings.Split(strings.TrimPrefix(rel, "./"), "/")
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("预览路径必须形如 ./<批次>/<文件名>：%q", rel)
	}
	batch, err = strconv.Atoi(parts[0])
	if err != nil || batch < 1 || strconv.Itoa(batch) != parts[0] {
		return 0, "", fmt.Errorf("非法批次目录：%q", rel)
	}
	name = parts[1]
	if name == "" || name == "." || name == ".." || !strings.EqualFold(path.Ext(name), PreviewExt) {
		return 0, "", fmt.Errorf("非法预览文件名：%q", rel)
	}
	return batch, name, nil
}

// ExistingPreview 描述工作目录中已存在的预览。
type ExistingPreview struct {
	Batch int
	Rel   string
	Size  int64
}

// IndexPreviews 扫描所有数字批次目录，按文件名建立已存在预览的索引。
// 同名文件出现在多个批次时取编号最小的批次。隐藏文件（临时文件）被忽略。
func (w Workspace) IndexPreviews() (map[string]ExistingPreview, error) {
	out := make(map[string]ExistingPreview)

	entries, err := afero.ReadDir(w.Fs, w.Dir)
	if err != nil {
		return nil, err
	}

	batches := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 1 || strconv.Itoa(n) != e.Name() {
			continue
		}
		batches = append(batches, n)
	}
	sort.Ints(batches)

	for _, b := range batches {
		files, err := afero.ReadDir(w.Fs, w.BatchDir(b))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || path.Ext(name) != PreviewExt {
				continue
			}
			if _, ok := out[name]; ok {
				continue
			}
			out[name] = ExistingPreview{
				Batch: b,
				Rel:   "./" + path.Join(strconv.Itoa(b), name),
				Size:  f.Size(),
			}
		}
	}
	return out, nil
}
